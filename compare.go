package farez

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// Keys removed or normalized before whole-subtree comparisons.
const (
	bundleReferenceIDsKey = "bundleReferenceIds"
	journeysKey           = "journeys"
)

var serviceChargeKeys = map[string]bool{
	"serviceChargeAmount":          true,
	"passengerServiceChargeAmount": true,
}

// Normalize returns a deep copy of a generic JSON tree with volatile or
// equivalent representations folded together, so two responses can be
// compared for deep equality:
//   - bundleReferenceIds lists inside journeys are removed
//   - service-charge amounts that are null or exactly zero are removed
//
// Normalize is idempotent.
func Normalize(tree any) any {
	return normalize(tree, false)
}

func normalize(node any, inJourneys bool) any {
	switch x := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			if inJourneys && k == bundleReferenceIDsKey {
				continue
			}
			if serviceChargeKeys[k] {
				if d, ok := parseAmount(child); ok && d.IsZero() {
					continue
				}
			}
			out[k] = normalize(child, inJourneys || k == journeysKey)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			out[i] = normalize(child, inJourneys)
		}
		return out
	default:
		return node
	}
}

// treeOptions compare JSON numbers by value, so 120.0 equals 120.00.
var treeOptions = cmp.Options{
	cmp.Comparer(func(a, b json.Number) bool {
		da, errA := decimal.NewFromString(a.String())
		db, errB := decimal.NewFromString(b.String())
		if errA != nil || errB != nil {
			return a == b
		}
		return da.Equal(db)
	}),
}

// TreesEqual reports whether two generic JSON trees are deeply equal,
// comparing numbers by value.
func TreesEqual(a, b any) bool {
	return cmp.Equal(a, b, treeOptions)
}

// CompareTrees records a failure when two whole subtrees differ. The
// message carries a readable diff.
func CompareTrees(rec Recorder, path, label string, expected, actual any) bool {
	if TreesEqual(expected, actual) {
		return true
	}
	diff := cmp.Diff(expected, actual, treeOptions)
	rec.Record(Failure{
		Kind:    KindAssertion,
		Path:    path,
		Message: fmt.Sprintf("mismatch in %s (-expected +actual):\n%s", label, diff),
	})
	return false
}

// CompareLists compares two lists by length and then element by element up
// to the shorter length. A length mismatch never stops the element
// comparison.
func CompareLists(rec Recorder, path, label string, expected, actual []any) {
	if len(expected) != len(actual) {
		rec.Mismatch(path, "mismatch in "+label+" size", len(expected), len(actual))
	}
	for i := 0; i < min(len(expected), len(actual)); i++ {
		CompareTrees(rec, index(path, i), fmt.Sprintf("%s at index %d", label, i), expected[i], actual[i])
	}
}

// CompareEntriesByKey compares two lists of objects index by index, and
// within each pair every key present on either side.
func CompareEntriesByKey(rec Recorder, path, label string, expected, actual []any) {
	if len(expected) != len(actual) {
		rec.Mismatch(path, "mismatch in "+label+" size", len(expected), len(actual))
	}
	for i := 0; i < min(len(expected), len(actual)); i++ {
		CompareObjects(rec, index(path, i), fmt.Sprintf("%s[%d]", label, i), asObject(expected[i]), asObject(actual[i]))
	}
}

// CompareObjects compares two objects key by key over the union of their
// keys, so a key present on one side only is a mismatch. Keys in skip are
// left to the caller.
func CompareObjects(rec Recorder, path, label string, expected, actual map[string]any, skip ...string) {
	for _, k := range unionKeys(expected, actual) {
		if slices.Contains(skip, k) {
			continue
		}
		CompareTrees(rec, field(path, k), label+"."+k, expected[k], actual[k])
	}
}

func unionKeys(a, b map[string]any) []string {
	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	return sortedKeys(keys)
}

// CompareValue compares one named business field with plain equality.
func CompareValue(rec Recorder, path, label string, expected, actual any) {
	if !cmp.Equal(expected, actual, treeOptions) {
		rec.Mismatch(path, "mismatch in "+label, expected, actual)
	}
}

// compareAmount compares two money amounts exactly.
func compareAmount(rec Recorder, path, label string, expected, actual Money) {
	if !expected.Amount.Equal(actual.Amount) {
		rec.Mismatch(path, "mismatch in "+label, expected.Amount.StringFixed(2), actual.Amount.StringFixed(2))
	}
}

func boolString(b *bool) string {
	if b == nil {
		return "null"
	}
	return fmt.Sprintf("%t", *b)
}

// CompareOfferFlags compares haveBundles and canBeHeld of two offers.
func CompareOfferFlags(rec Recorder, path string, expected, actual *Offer) {
	if e, a := boolString(expected.HaveBundles), boolString(actual.HaveBundles); e != a {
		rec.Mismatch(field(path, "haveBundles"), "mismatch in haveBundles", e, a)
	}
	if e, a := boolString(expected.CanBeHeld), boolString(actual.CanBeHeld); e != a {
		rec.Mismatch(field(path, "canBeHeld"), "mismatch in canBeHeld", e, a)
	}
}

// ComparePriceTotals compares the total, taxes and base amounts of two
// price details with plain equality.
func ComparePriceTotals(rec Recorder, path string, expected, actual *PriceDetails) {
	if expected == nil || actual == nil {
		if expected != actual {
			rec.Missing(path, "priceDetails missing on one side")
		}
		return
	}
	compareAmount(rec, field(path, "totalAmount"), "priceDetails.totalAmount", expected.Total, actual.Total)
	compareAmount(rec, field(path, "taxesAmount"), "priceDetails.taxesAmount", expected.Taxes, actual.Taxes)
	compareAmount(rec, field(path, "baseAmount"), "priceDetails.baseAmount", expected.Base, actual.Base)
}

// ComparePriceAmounts compares every amount of two price details exactly,
// and their currencies where both sides carry one. An absent amount
// compares as zero.
func ComparePriceAmounts(rec Recorder, path string, expected, actual *PriceDetails) {
	if expected == nil || actual == nil {
		if expected != actual {
			rec.Missing(path, "priceDetails missing on one side")
		}
		return
	}
	for _, f := range priceAmountFields(expected, actual) {
		p := field(path, f.name)
		compareAmount(rec, p, "priceDetails."+f.name, f.want, f.got)
		if f.want.Currency != "" && f.got.Currency != "" && f.want.Currency != f.got.Currency {
			rec.Mismatch(field(p, "currency"), "mismatch in priceDetails."+f.name+" currency", f.want.Currency, f.got.Currency)
		}
	}
}

type amountPair struct {
	name      string
	want, got Money
}

func priceAmountFields(expected, actual *PriceDetails) []amountPair {
	return []amountPair{
		{"totalAmount", expected.Total, actual.Total},
		{"baseAmount", expected.Base, actual.Base},
		{"taxesAmount", expected.Taxes, actual.Taxes},
		{"discountAmount", expected.Discount, actual.Discount},
		{"serviceChargeAmount", expected.ServiceCharge, actual.ServiceCharge},
	}
}

// byType indexes a breakdown by passenger type code, keeping the first
// entry of each type.
func byType(breakdown []PassengerFare) map[string]*PassengerFare {
	out := make(map[string]*PassengerFare, len(breakdown))
	for i := range breakdown {
		code := typeCode(breakdown[i].PassengerTypeCode)
		if _, ok := out[code]; !ok {
			out[code] = &breakdown[i]
		}
	}
	return out
}

// reportUnexpectedTypes records every passenger type of actual that
// expected does not list. format takes the type code.
func reportUnexpectedTypes(rec Recorder, path, format string, expected, actual []PassengerFare) {
	want := byType(expected)
	seen := make(map[string]bool, len(actual))
	for i := range actual {
		code := typeCode(actual[i].PassengerTypeCode)
		if _, ok := want[code]; ok || seen[code] {
			continue
		}
		seen[code] = true
		rec.Fail(index(path, i), format, actual[i].PassengerTypeCode)
	}
}

// ComparePassengerAmounts compares, per passenger type, the count and the
// total, taxes and base amounts of two breakdowns. A type listed on one
// side only is a failure.
func ComparePassengerAmounts(rec Recorder, path string, expected, actual []PassengerFare) {
	got := byType(actual)
	for i := range expected {
		want := &expected[i]
		code := want.PassengerTypeCode
		p := index(path, i)
		have, ok := got[typeCode(code)]
		if !ok {
			rec.Fail(p, "passenger type %s missing from breakdown", code)
			continue
		}
		if want.NumberOfPassengers != have.NumberOfPassengers {
			rec.Mismatch(field(p, "numberOfPassengers"), "mismatch in numberOfPassengers for type "+code,
				want.NumberOfPassengers.Value, have.NumberOfPassengers.Value)
		}
		compareAmount(rec, field(p, "passengerTotalAmount"), "passengerTotalAmount for type "+code, want.Total, have.Total)
		compareAmount(rec, field(p, "passengerTaxesAmount"), "passengerTaxesAmount for type "+code, want.Taxes, have.Taxes)
		compareAmount(rec, field(p, "passengerBaseAmount"), "passengerBaseAmount for type "+code, want.Base, have.Base)
	}
	reportUnexpectedTypes(rec, path, "passenger type %s is not in the expected breakdown", expected, actual)
}

// CompareRBD compares the RBD of every segment, per passenger type. A
// segment-count mismatch is reported and comparison continues up to the
// shorter list. A type listed on one side only is a failure.
func CompareRBD(rec Recorder, path string, expected, actual []PassengerFare) {
	got := byType(actual)
	for i := range expected {
		want := &expected[i]
		code := want.PassengerTypeCode
		p := field(index(path, i), "segmentDetails")
		have, ok := got[typeCode(code)]
		if !ok {
			rec.Fail(index(path, i), "passenger type %s missing; RBD not compared", code)
			continue
		}
		if len(want.SegmentDetails) != len(have.SegmentDetails) {
			rec.Mismatch(p, "segment count mismatch for passenger type "+code, len(want.SegmentDetails), len(have.SegmentDetails))
		}
		for j := 0; j < min(len(want.SegmentDetails), len(have.SegmentDetails)); j++ {
			if want.SegmentDetails[j].RBD != have.SegmentDetails[j].RBD {
				rec.Mismatch(field(index(p, j), "rbd"),
					fmt.Sprintf("RBD mismatch for passenger type %s segment %d", code, j),
					want.SegmentDetails[j].RBD, have.SegmentDetails[j].RBD)
			}
		}
	}
	reportUnexpectedTypes(rec, path, "passenger type %s is not in the expected breakdown", expected, actual)
}

// typeTotals is the summed base, taxes and total of one passenger type.
type typeTotals struct {
	Base, Taxes, Total decimal.Decimal
}

func sumByType(breakdown []PassengerFare) map[string]*typeTotals {
	out := make(map[string]*typeTotals)
	for i := range breakdown {
		pax := &breakdown[i]
		code := typeCode(pax.PassengerTypeCode)
		t, ok := out[code]
		if !ok {
			t = &typeTotals{}
			out[code] = t
		}
		t.Base = t.Base.Add(pax.Base.Amount)
		t.Taxes = t.Taxes.Add(pax.Taxes.Amount)
		t.Total = t.Total.Add(pax.Total.Amount)
	}
	return out
}

// CompareQuoteWithBooking checks a per-unit quote (FareConfirm) against a
// count-aggregated booking breakdown. Each quoted amount is multiplied by
// the passenger count for its type before comparing under tolerance. The
// count is the one PassengerMultiplier gives for the quoted entry.
func CompareQuoteWithBooking(rec Recorder, path string, quote, booked []PassengerFare, counts map[string]int, tolerance decimal.Decimal) {
	sums := sumByType(booked)
	for i := range quote {
		q := &quote[i]
		code := q.PassengerTypeCode
		actual, ok := sums[typeCode(code)]
		if !ok {
			rec.Fail(index(path, i), "passenger type %s quoted but not booked", code)
			continue
		}
		mult := decimal.NewFromInt(int64(PassengerMultiplier(q, counts)))
		p := index(path, i)
		CompareWithTolerance(rec, field(p, "passengerBaseAmount"), "base amount for type "+code,
			Round2(q.Base.Amount.Mul(mult)), Round2(actual.Base), tolerance)
		CompareWithTolerance(rec, field(p, "passengerTaxesAmount"), "taxes amount for type "+code,
			Round2(q.Taxes.Amount.Mul(mult)), Round2(actual.Taxes), tolerance)
		CompareWithTolerance(rec, field(p, "passengerTotalAmount"), "total amount for type "+code,
			Round2(q.Total.Amount.Mul(mult)), Round2(actual.Total), tolerance)
	}
	reportUnexpectedTypes(rec, path, "passenger type %s booked but not quoted", quote, booked)
}

// ComparePriceDetailsWithTolerance compares every amount of two offer-level
// price details under tolerance. A null or zero service charge on either
// side counts as absent, which the zero-as-absent amounts already give.
func ComparePriceDetailsWithTolerance(rec Recorder, path string, expected, actual *PriceDetails, tolerance decimal.Decimal) {
	if expected == nil || actual == nil {
		if expected != actual {
			rec.Missing(path, "priceDetails missing on one side")
		}
		return
	}
	for _, f := range priceAmountFields(expected, actual) {
		CompareWithTolerance(rec, field(path, f.name), "priceDetails."+f.name, Round2(f.want.Amount), Round2(f.got.Amount), tolerance)
	}
}

// CompareAddPaxPassengers verifies the booked passengers match the AddPax
// request one to one, by key and passenger type code.
func CompareAddPaxPassengers(rec Recorder, path string, booked map[string]BookedPassenger, addPax *AddPaxPayload) {
	if booked == nil {
		rec.Missing(path, "passengers is missing")
		return
	}
	if len(booked) != len(addPax.Passengers) {
		rec.Mismatch(path, "booked passenger count does not match AddPax", len(addPax.Passengers), len(booked))
	}
	for _, key := range sortedKeys(addPax.Passengers) {
		want := addPax.Passengers[key]
		got, ok := booked[key]
		if !ok {
			rec.Fail(field(path, key), "AddPax passenger %s was not booked", key)
			continue
		}
		if typeCode(got.PassengerTypeCode) != typeCode(want.PassengerTypeCode) {
			rec.Mismatch(field(field(path, key), "passengerTypeCode"), "passenger type mismatch for passenger "+key,
				want.PassengerTypeCode, got.PassengerTypeCode)
		}
	}
	for _, key := range sortedKeys(booked) {
		if _, ok := addPax.Passengers[key]; !ok {
			rec.Fail(field(path, key), "booked passenger %s was not in the AddPax request", key)
		}
	}
}

// CompareBookingContext compares the carry-over identifiers of two bookings.
func CompareBookingContext(rec Recorder, expected, actual BookingContext) {
	CompareValue(rec, field(Root, "ndcBookingReference"), "ndcBookingReference", expected.NDCBookingReference, actual.NDCBookingReference)
	CompareValue(rec, field(Root, "airlinePnr"), "airlinePnr", expected.AirlinePNR, actual.AirlinePNR)
	CompareValue(rec, field(Root, "gdsPnr"), "gdsPnr", expected.GDSPNR, actual.GDSPNR)
	CompareValue(rec, field(Root, "bookingToken"), "bookingToken", expected.BookingToken, actual.BookingToken)
}

// CompareSubtree compares one top-level subtree of two normalized responses.
func CompareSubtree(rec Recorder, key string, expected, actual any) bool {
	return CompareTrees(rec, field(Root, key), key, lookup(expected, key), lookup(actual, key))
}
