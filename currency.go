package farez

// CurrencyScope lists the monetary fields of one offer or order whose
// currency is checked.
type CurrencyScope struct {
	Breakdown    []PassengerFare
	PriceDetails *PriceDetails
}

// CheckCurrencies asserts that every known monetary field under path carries
// the expected currency. Fee lines whose code is exempt (cancellation and
// change fees by default) are skipped, as are fields without a currency:
// absence is a schema concern, not a currency mismatch.
func CheckCurrencies(rec Recorder, path string, scope CurrencyScope, cfg Config) {
	expected := cfg.Currency
	if expected == "" {
		rec.Missing(path, "expected currency is not configured (%s header missing)", HeaderAgencyCurrency)
		return
	}

	check := func(p string, m Money) {
		if !m.Present || m.Currency == "" {
			rec.Info(p, "currency not present; skipped")
			return
		}
		if m.Currency != expected {
			rec.Mismatch(p, "currency mismatch", expected, m.Currency)
		}
	}
	fees := func(p string, list []TaxFee) {
		for i := range list {
			if cfg.exemptFee(list[i].Code) {
				continue
			}
			check(field(field(index(p, i), "amount"), "currency"), list[i].Amount)
		}
	}

	bdPath := field(path, "passengerFareBreakdown")
	for i := range scope.Breakdown {
		pax := &scope.Breakdown[i]
		paxPath := index(bdPath, i)
		check(field(field(paxPath, "passengerBaseAmount"), "currency"), pax.Base)
		check(field(field(paxPath, "passengerTaxesAmount"), "currency"), pax.Taxes)
		fees(field(paxPath, "taxesAndFees"), pax.TaxesAndFees)
	}

	if pd := scope.PriceDetails; pd != nil {
		pdPath := field(path, "priceDetails")
		check(field(field(pdPath, "totalAmount"), "currency"), pd.Total)
		check(field(field(pdPath, "baseAmount"), "currency"), pd.Base)
		check(field(field(pdPath, "taxesAmount"), "currency"), pd.Taxes)
		fees(field(pdPath, "taxesAndFees"), pd.TaxesAndFees)
	}
}
