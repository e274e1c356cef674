package farez

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// CheckUniqueOfferIDs verifies that no two offers share an offer id.
func CheckUniqueOfferIDs(rec Recorder, path string, offers []Offer) {
	seen := make(map[string]int, len(offers))
	for i := range offers {
		id := offers[i].OfferID
		if id == "" {
			rec.Missing(field(index(path, i), "offerId"), "offerId is missing")
			continue
		}
		if first, ok := seen[id]; ok {
			rec.Fail(field(index(path, i), "offerId"), "duplicate offerId %q (first seen at offer %d)", id, first)
			continue
		}
		seen[id] = i
	}
}

// CheckSortedByTotal verifies that offers are non-decreasing by
// priceDetails.totalAmount, comparing neighbours in list order. Each
// violation is reported at the index of the cheaper, later offer.
func CheckSortedByTotal(rec Recorder, path string, offers []Offer) {
	for i := 1; i < len(offers); i++ {
		prev, cur := offers[i-1].PriceDetails, offers[i].PriceDetails
		if prev == nil || cur == nil {
			continue
		}
		if cur.Total.Amount.LessThan(prev.Total.Amount) {
			rec.Record(Failure{
				Kind:     KindAssertion,
				Path:     field(field(index(path, i), "priceDetails"), "totalAmount"),
				Message:  fmt.Sprintf("offers not sorted ascending by total: offer %d is cheaper than offer %d", i, i-1),
				Expected: ">= " + prev.Total.Amount.StringFixed(2),
				Actual:   cur.Total.Amount.StringFixed(2),
			})
		}
	}
}

// CheckDistinctOffers verifies that no two offers are structurally
// identical, comparing their canonical serialization. Object keys serialize
// in sorted order, so equal offers always serialize identically.
func CheckDistinctOffers(rec Recorder, path string, offers []Offer) {
	seen := make(map[string]int, len(offers))
	for i := range offers {
		canonical, err := json.Marshal(offers[i].Raw)
		if err != nil {
			rec.Malformed(index(path, i), "offer", err)
			continue
		}
		key := string(canonical)
		if first, ok := seen[key]; ok {
			rec.Fail(index(path, i), "offer %d is an exact duplicate of offer %d", i, first)
			continue
		}
		seen[key] = i
	}
}

// CheckUniquePassengerTypes verifies that each passenger type appears once in
// a breakdown list.
func CheckUniquePassengerTypes(rec Recorder, path string, breakdown []PassengerFare) {
	seen := make(map[string]bool, len(breakdown))
	for i := range breakdown {
		code := breakdown[i].PassengerTypeCode
		if code == "" {
			rec.Missing(field(index(path, i), "passengerTypeCode"), "passengerTypeCode is missing")
			continue
		}
		if seen[typeCode(code)] {
			rec.Fail(field(index(path, i), "passengerTypeCode"), "duplicate passenger type %q", code)
			continue
		}
		seen[typeCode(code)] = true
	}
}

// CheckUniqueTaxCodes verifies that tax codes are unique within one list.
// Each duplicated code is reported once.
func CheckUniqueTaxCodes(rec Recorder, path string, fees []TaxFee) {
	counts := make(map[string]int, len(fees))
	var order []string
	for i := range fees {
		code := fees[i].Code
		if counts[code] == 0 {
			order = append(order, code)
		}
		counts[code]++
	}
	for _, code := range order {
		if counts[code] > 1 {
			rec.Fail(path, "duplicate tax code %q appears %d times", code, counts[code])
		}
	}
}

// CheckRequiredAmounts verifies that each breakdown entry carries base, taxes
// and total amounts.
func CheckRequiredAmounts(rec Recorder, path string, breakdown []PassengerFare) {
	for i := range breakdown {
		pax := &breakdown[i]
		paxPath := index(path, i)
		for _, req := range []struct {
			name string
			m    Money
		}{
			{"passengerBaseAmount", pax.Base},
			{"passengerTaxesAmount", pax.Taxes},
			{"passengerTotalAmount", pax.Total},
		} {
			if !req.m.Present {
				rec.Missing(field(paxPath, req.name), "%s missing for passenger type %s", req.name, pax.PassengerTypeCode)
			}
		}
	}
}

// CheckPassengersMatchPayload verifies that the breakdown lists exactly the
// passenger types requested, each with the requested count.
func CheckPassengersMatchPayload(rec Recorder, path string, breakdown []PassengerFare, payload *SearchPayload) {
	counts := payload.Counts()
	if counts == nil {
		rec.Skip("search payload lists no passengers")
		return
	}
	found := make(map[string]bool, len(breakdown))
	for i := range breakdown {
		pax := &breakdown[i]
		found[typeCode(pax.PassengerTypeCode)] = true
		want, ok := counts[typeCode(pax.PassengerTypeCode)]
		if !ok {
			rec.Fail(field(index(path, i), "passengerTypeCode"), "passenger type %q was not requested", pax.PassengerTypeCode)
			continue
		}
		if !pax.NumberOfPassengers.Present {
			rec.Missing(field(index(path, i), "numberOfPassengers"), "numberOfPassengers missing for passenger type %s", pax.PassengerTypeCode)
			continue
		}
		if pax.NumberOfPassengers.Value != want {
			rec.Mismatch(field(index(path, i), "numberOfPassengers"),
				"passenger count mismatch for type "+pax.PassengerTypeCode, want, pax.NumberOfPassengers.Value)
		}
	}
	for _, code := range sortedKeys(counts) {
		if !found[code] {
			rec.Fail(path, "requested passenger type %q is missing from the breakdown", code)
		}
	}
}

// CheckRBD verifies that every segment entry carries a non-empty RBD.
func CheckRBD(rec Recorder, path string, breakdown []PassengerFare) {
	for i := range breakdown {
		pax := &breakdown[i]
		for j, ref := range pax.SegmentDetails {
			if strings.TrimSpace(ref.RBD) == "" {
				rec.Missing(field(index(field(index(path, i), "segmentDetails"), j), "rbd"),
					"rbd is null or empty for passenger type %s segment %s", pax.PassengerTypeCode, ref.SegmentRefID)
			}
		}
	}
}

// CheckSegmentCoverage verifies that each passenger has at least one segment
// entry per searched leg.
func CheckSegmentCoverage(rec Recorder, path string, breakdown []PassengerFare, legs []Leg) {
	for i := range breakdown {
		pax := &breakdown[i]
		if len(pax.SegmentDetails) < len(legs) {
			rec.Mismatch(field(index(path, i), "segmentDetails"),
				fmt.Sprintf("passenger type %s has fewer segments than searched legs", pax.PassengerTypeCode),
				fmt.Sprintf(">= %d", len(legs)), len(pax.SegmentDetails))
		}
	}
}

// CheckJourneyCount verifies that an offer references one journey per
// searched leg.
func CheckJourneyCount(rec Recorder, path string, offer *Offer, legs []Leg) {
	if len(legs) == 0 {
		rec.Skip("search payload has no search criteria")
		return
	}
	if len(offer.Journeys) != len(legs) {
		rec.Mismatch(field(path, "offerJourneys"), "journey count does not match searched legs", len(legs), len(offer.Journeys))
	}
}

// CheckStops verifies numberOfStops equals the segment count minus one for
// every journey.
func CheckStops(rec Recorder, cat *Catalog) {
	for _, id := range sortedKeys(cat.Journeys) {
		journey := cat.Journeys[id]
		p := field(field(field(Root, "journeys"), id), "numberOfStops")
		if !journey.NumberOfStops.Present {
			rec.Missing(p, "numberOfStops missing in journey %s", id)
			continue
		}
		want := len(journey.SegmentReferenceIDs) - 1
		if journey.NumberOfStops.Value != want {
			rec.Mismatch(p, "journey "+id+" stop count does not match its segments", want, journey.NumberOfStops.Value)
		}
	}
}

// CheckBookingIdentifiers verifies the booking reference and airline PNR are
// present, and that every journey carries its segment references.
func CheckBookingIdentifiers(rec Recorder, resp *BookingResponse) {
	if resp.NDCBookingReference == nil {
		rec.Missing(field(Root, "ndcBookingReference"), "ndcBookingReference is null")
	}
	if resp.AirlinePNR == nil {
		rec.Missing(field(Root, "airlinePnr"), "airlinePnr is null")
	}
	if resp.Journeys == nil {
		rec.Missing(field(Root, "journeys"), "journeys is missing")
		return
	}
	for _, id := range sortedKeys(resp.Journeys) {
		if resp.Journeys[id].SegmentReferenceIDs == nil {
			rec.Missing(field(field(field(Root, "journeys"), id), "segmentReferenceIds"), "segmentReferenceIds is null in journey %s", id)
		}
	}
}

// CheckSelectedOfferCount verifies that FareConfirm returned exactly one
// selected offer option.
func CheckSelectedOfferCount(rec Recorder, resp *FareConfirmResponse) {
	p := field(Root, "selectedOfferOptions")
	switch n := len(resp.SelectedOfferOptions); {
	case resp.SelectedOfferOptions == nil:
		rec.Missing(p, "selectedOfferOptions is missing")
	case n != 1:
		rec.Mismatch(p, "expected exactly one selected offer option", 1, n)
	}
}

// CheckPriceClasses verifies that price classes exist and each has a name, a
// fare type and a non-empty rulesAndPenalties list.
func CheckPriceClasses(rec Recorder, cat *Catalog) {
	base := field(Root, "priceClasses")
	if len(cat.PriceClasses) == 0 {
		rec.Missing(base, "priceClasses is null or empty")
		return
	}
	for _, id := range sortedKeys(cat.PriceClasses) {
		pc := cat.PriceClasses[id]
		p := field(base, id)
		if strings.TrimSpace(pc.PriceClassName) == "" {
			rec.Missing(field(p, "priceClassName"), "priceClassName is null or empty in price class %s", id)
		}
		if strings.TrimSpace(pc.FareType) == "" {
			rec.Missing(field(p, "fareType"), "fareType is null or empty in price class %s", id)
		}
		if len(pc.RulesAndPenalties) == 0 {
			rec.Missing(field(p, "rulesAndPenalties"), "rulesAndPenalties is null or empty in price class %s", id)
		}
	}
}

// CheckBaggageDetails verifies that baggage details exist and each carries
// carry-on and check-in allowances.
func CheckBaggageDetails(rec Recorder, cat *Catalog) {
	base := field(Root, "baggageDetails")
	if len(cat.BaggageDetails) == 0 {
		rec.Missing(base, "baggageDetails is null or empty")
		return
	}
	for _, id := range sortedKeys(cat.BaggageDetails) {
		bd := cat.BaggageDetails[id]
		p := field(base, id)
		if bd.CarryOnBaggage == nil {
			rec.Missing(field(p, "carryOnBaggage"), "carryOnBaggage is null in baggage detail %s", id)
		}
		if bd.CheckInBaggage == nil {
			rec.Missing(field(p, "checkInBaggage"), "checkInBaggage is null in baggage detail %s", id)
		}
	}
}

var errNotBase64 = errors.New("offerId is not valid base64")

// decodeOfferID decodes an opaque offer id, trying the standard and URL
// alphabets with and without padding.
func decodeOfferID(id string) (string, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(id); err == nil {
			return string(b), nil
		}
	}
	return "", errNotBase64
}

// CheckOfferIDEncoding verifies that the decoded offer id names the expected
// agency, case-insensitively.
func CheckOfferIDEncoding(rec Recorder, path string, offer *Offer, agency string) {
	if agency == "" {
		rec.Skip("expected agency is not configured")
		return
	}
	p := field(path, "offerId")
	if offer.OfferID == "" {
		rec.Missing(p, "offerId is missing")
		return
	}
	decoded, err := decodeOfferID(offer.OfferID)
	if err != nil {
		rec.Malformed(p, offer.OfferID, err)
		return
	}
	if !strings.Contains(strings.ToLower(decoded), strings.ToLower(agency)) {
		rec.Mismatch(p, "decoded offerId does not contain the agency name", agency, decoded)
	}
}

// Completeness finding types, in reporting order.
const (
	FindingNull        = "NULL"
	FindingEmptyString = "EMPTY STRING"
	FindingEmptyList   = "EMPTY LIST"
	FindingEmptyObject = "EMPTY OBJECT"
)

var findingRank = map[string]int{
	FindingNull:        0,
	FindingEmptyString: 1,
	FindingEmptyList:   2,
	FindingEmptyObject: 3,
}

// Finding is one null or empty value located by the completeness scan.
type Finding struct {
	Type string
	Path string
}

// ScanCompleteness walks a generic JSON tree and returns every null value,
// empty string, empty list and empty object, deduplicated and sorted by type
// then path.
func ScanCompleteness(tree any) []Finding {
	var out []Finding
	var walk func(node any, p string)
	walk = func(node any, p string) {
		switch x := node.(type) {
		case nil:
			out = append(out, Finding{Type: FindingNull, Path: p})
		case string:
			if x == "" {
				out = append(out, Finding{Type: FindingEmptyString, Path: p})
			}
		case []any:
			if len(x) == 0 {
				out = append(out, Finding{Type: FindingEmptyList, Path: p})
				return
			}
			for i, child := range x {
				walk(child, index(p, i))
			}
		case map[string]any:
			if len(x) == 0 {
				out = append(out, Finding{Type: FindingEmptyObject, Path: p})
				return
			}
			for _, k := range sortedKeys(x) {
				walk(x[k], field(p, k))
			}
		}
	}
	walk(tree, Root)

	slices.SortFunc(out, func(a, b Finding) int {
		if d := findingRank[a.Type] - findingRank[b.Type]; d != 0 {
			return d
		}
		return strings.Compare(a.Path, b.Path)
	})
	return slices.Compact(out)
}

// CheckCompleteness records every completeness finding in tree. Findings on
// paths ending in one of warnSuffixes are warnings; all others fail.
func CheckCompleteness(rec Recorder, tree any, warnSuffixes []string) {
	for _, f := range ScanCompleteness(tree) {
		warn := false
		for _, suffix := range warnSuffixes {
			if strings.HasSuffix(f.Path, suffix) {
				warn = true
				break
			}
		}
		if warn {
			rec.Warn(f.Path, "%s value on optional field", f.Type)
			continue
		}
		rec.Record(Failure{Kind: KindMissingData, Path: f.Path, Message: f.Type + " value"})
	}
}
