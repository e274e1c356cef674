package farez

import (
	"github.com/shopspring/decimal"
)

// malformed records every malformed money field of the named set and
// reports whether any was found.
func malformed(rec Recorder, path string, fields map[string]Money) bool {
	bad := false
	for _, name := range sortedKeys(fields) {
		if m := fields[name]; m.Malformed != "" {
			rec.Malformed(field(path, name), m.Malformed, nil)
			bad = true
		}
	}
	return bad
}

// expectedTotal computes round2(base + taxes - discount + service).
func expectedTotal(base, taxes, discount, service Money) decimal.Decimal {
	return Round2(base.Amount.Add(taxes.Amount).Sub(discount.Amount).Add(service.Amount))
}

// CheckPassengerTotal verifies that a passenger's total equals
// round2(base + taxes - discount + service), compared exactly after
// rounding the reported total to two decimals.
func CheckPassengerTotal(rec Recorder, path string, pax *PassengerFare) {
	if malformed(rec, path, map[string]Money{
		"passengerBaseAmount":          pax.Base,
		"passengerTaxesAmount":         pax.Taxes,
		"passengerDiscountAmount":      pax.Discount,
		"passengerServiceChargeAmount": pax.ServiceCharge,
		"passengerTotalAmount":         pax.Total,
	}) {
		return
	}
	if !pax.Total.Present {
		rec.Missing(field(path, "passengerTotalAmount"), "passengerTotalAmount missing for passenger type %s", pax.PassengerTypeCode)
		return
	}
	expected := expectedTotal(pax.Base, pax.Taxes, pax.Discount, pax.ServiceCharge)
	actual := Round2(pax.Total.Amount)
	if !actual.Equal(expected) {
		rec.Mismatch(field(path, "passengerTotalAmount"),
			"incorrect passengerTotalAmount for type "+pax.PassengerTypeCode,
			expected.StringFixed(2), actual.StringFixed(2))
	}
}

// sumFees adds the amounts of a taxesAndFees list. It reports false after
// recording a malformed line.
func sumFees(rec Recorder, path string, fees []TaxFee) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for i := range fees {
		if fees[i].Amount.Malformed != "" {
			rec.Malformed(field(index(path, i), "amount"), fees[i].Amount.Malformed, nil)
			return sum, false
		}
		sum = sum.Add(fees[i].Amount.Amount)
	}
	return sum, true
}

// CheckTaxSum verifies that the taxes amount equals the exact sum of the
// taxesAndFees lines. path locates the object holding both fields and
// taxesField names the taxes amount within it.
func CheckTaxSum(rec Recorder, path, taxesField string, fees []TaxFee, taxes Money) {
	if taxes.Malformed != "" {
		rec.Malformed(field(path, taxesField), taxes.Malformed, nil)
		return
	}
	sum, ok := sumFees(rec, field(path, "taxesAndFees"), fees)
	if !ok {
		return
	}
	if !sum.Equal(taxes.Amount) {
		rec.Mismatch(field(path, taxesField), "taxes amount does not equal the sum of taxesAndFees",
			sum.String(), taxes.Amount.String())
	}
}

// CheckPriceDetailsTotal verifies an offer-level total equals
// round2(base + taxes - discount + service).
func CheckPriceDetailsTotal(rec Recorder, path string, pd *PriceDetails) {
	if pd == nil {
		rec.Missing(path, "priceDetails is missing")
		return
	}
	if malformed(rec, path, map[string]Money{
		"baseAmount":          pd.Base,
		"taxesAmount":         pd.Taxes,
		"discountAmount":      pd.Discount,
		"serviceChargeAmount": pd.ServiceCharge,
		"totalAmount":         pd.Total,
	}) {
		return
	}
	if !pd.Total.Present {
		rec.Missing(field(path, "totalAmount"), "totalAmount is missing")
		return
	}
	expected := expectedTotal(pd.Base, pd.Taxes, pd.Discount, pd.ServiceCharge)
	actual := Round2(pd.Total.Amount)
	if !actual.Equal(expected) {
		rec.Mismatch(field(path, "totalAmount"), "incorrect totalAmount in priceDetails",
			expected.StringFixed(2), actual.StringFixed(2))
	}
}

// CheckPriceDetailsTaxes verifies priceDetails.taxesAmount against its
// taxesAndFees list. An empty list is noted rather than failed; some
// suppliers only itemise taxes per passenger.
func CheckPriceDetailsTaxes(rec Recorder, path string, pd *PriceDetails) {
	if pd == nil {
		return
	}
	if len(pd.TaxesAndFees) == 0 {
		rec.Info(field(path, "taxesAndFees"), "offer-level taxesAndFees is empty; tax sum not checked")
		return
	}
	CheckTaxSum(rec, path, "taxesAmount", pd.TaxesAndFees, pd.Taxes)
}

// PassengerMultiplier returns how many passengers a breakdown entry stands
// for. The request payload is authoritative when it lists the type;
// otherwise the entry's own numberOfPassengers is used, and 1 as a last
// resort.
func PassengerMultiplier(pax *PassengerFare, counts map[string]int) int {
	if n, ok := counts[typeCode(pax.PassengerTypeCode)]; ok {
		return n
	}
	if pax.NumberOfPassengers.Present {
		return pax.NumberOfPassengers.Value
	}
	return 1
}

// CheckAggregateTotals verifies Σ(per-passenger amount × count) equals the
// matching priceDetails amount for total, base and taxes.
func CheckAggregateTotals(rec Recorder, path string, breakdown []PassengerFare, pd *PriceDetails, counts map[string]int) {
	if pd == nil || breakdown == nil {
		return
	}
	total, base, taxes := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range breakdown {
		pax := &breakdown[i]
		if malformed(rec, index(field(path, "passengerFareBreakdown"), i), map[string]Money{
			"passengerBaseAmount":  pax.Base,
			"passengerTaxesAmount": pax.Taxes,
			"passengerTotalAmount": pax.Total,
		}) {
			return
		}
		n := decimal.NewFromInt(int64(PassengerMultiplier(pax, counts)))
		total = total.Add(pax.Total.Amount.Mul(n))
		base = base.Add(pax.Base.Amount.Mul(n))
		taxes = taxes.Add(pax.Taxes.Amount.Mul(n))
	}

	pdPath := field(path, "priceDetails")
	compare := func(name string, sum decimal.Decimal, reported Money) {
		if reported.Malformed != "" {
			rec.Malformed(field(pdPath, name), reported.Malformed, nil)
			return
		}
		if !Round2(sum).Equal(Round2(reported.Amount)) {
			rec.Mismatch(field(pdPath, name), "aggregate "+name+" does not equal the sum over passengers",
				Round2(sum).StringFixed(2), Round2(reported.Amount).StringFixed(2))
		}
	}
	compare("totalAmount", total, pd.Total)
	compare("baseAmount", base, pd.Base)
	compare("taxesAmount", taxes, pd.Taxes)
}

// CheckFareArithmetic runs every within-response arithmetic check over a
// passenger breakdown and its price details.
func CheckFareArithmetic(rec Recorder, path string, breakdown []PassengerFare, pd *PriceDetails, counts map[string]int, aggregate bool) {
	bdPath := field(path, "passengerFareBreakdown")
	for i := range breakdown {
		paxPath := index(bdPath, i)
		CheckPassengerTotal(rec, paxPath, &breakdown[i])
		CheckTaxSum(rec, paxPath, "passengerTaxesAmount", breakdown[i].TaxesAndFees, breakdown[i].Taxes)
	}
	pdPath := field(path, "priceDetails")
	CheckPriceDetailsTotal(rec, pdPath, pd)
	CheckPriceDetailsTaxes(rec, pdPath, pd)
	if aggregate {
		CheckAggregateTotals(rec, path, breakdown, pd, counts)
	}
}

// CompareWithTolerance compares amounts that come from different responses.
// An exact match is silent, a difference within tolerance is noted, and
// anything larger is a failure. It must not be used for invariants within a
// single response.
func CompareWithTolerance(rec Recorder, path, label string, expected, actual, tolerance decimal.Decimal) {
	if expected.Equal(actual) {
		return
	}
	diff := expected.Sub(actual).Abs()
	if diff.LessThanOrEqual(tolerance) {
		rec.Info(path, "%s differs by %s, within rounding tolerance %s (expected %s, actual %s)",
			label, diff.String(), tolerance.String(), expected.StringFixed(2), actual.StringFixed(2))
		return
	}
	rec.Mismatch(path, label+" mismatch beyond rounding tolerance", expected.StringFixed(2), actual.StringFixed(2))
}
