package farez

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func fees(amounts ...string) []TaxFee {
	out := make([]TaxFee, len(amounts))
	codes := []string{"YQ", "YR", "XT", "ZZ"}
	for i, a := range amounts {
		out[i] = TaxFee{Code: codes[i%len(codes)], Amount: money(a)}
	}
	return out
}

func fare(code string, count int, base, taxes, total string) PassengerFare {
	return PassengerFare{
		PassengerTypeCode:  code,
		NumberOfPassengers: Count{Value: count, Present: true},
		Base:               money(base),
		Taxes:              money(taxes),
		Total:              money(total),
	}
}

func record(fn func(rec Recorder)) *Collector {
	c := NewCollector()
	fn(c.Recorder("arith"))
	return c
}

func TestCheckPassengerTotal(t *testing.T) {
	t.Run("Exact Total Passes", func(t *testing.T) {
		pax := fare("ADT", 1, "100", "20", "120")
		c := record(func(rec Recorder) { CheckPassengerTotal(rec, "$.pax", &pax) })
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Discount And Service Charge", func(t *testing.T) {
		pax := fare("ADT", 1, "100", "20", "115")
		pax.Discount = money("10")
		pax.ServiceCharge = money("5")
		c := record(func(rec Recorder) { CheckPassengerTotal(rec, "$.pax", &pax) })
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Rounding Half Up", func(t *testing.T) {
		pax := fare("ADT", 1, "100.004", "0.001", "100.01")
		c := record(func(rec Recorder) { CheckPassengerTotal(rec, "$.pax", &pax) })
		if c.Len() != 0 {
			t.Errorf("100.005 rounds to 100.01, got %v", c.Failures())
		}
	})

	t.Run("One Cent Off Fails", func(t *testing.T) {
		pax := fare("CHD", 1, "75", "15", "90.01")
		c := record(func(rec Recorder) { CheckPassengerTotal(rec, "$.pax", &pax) })
		failures := c.Failures()
		if len(failures) != 1 {
			t.Fatalf("expected one failure, got %v", failures)
		}
		f := failures[0]
		if f.Expected != "90.00" || f.Actual != "90.01" || f.Path != "$.pax.passengerTotalAmount" {
			t.Errorf("unexpected failure %+v", f)
		}
		if !strings.Contains(f.Message, "CHD") {
			t.Errorf("message should name the passenger type, got %q", f.Message)
		}
	})

	t.Run("Missing Total", func(t *testing.T) {
		pax := fare("ADT", 1, "100", "20", "0")
		pax.Total = Money{}
		c := record(func(rec Recorder) { CheckPassengerTotal(rec, "$.pax", &pax) })
		if f := c.Failures(); len(f) != 1 || f[0].Kind != KindMissingData {
			t.Errorf("expected one MissingData failure, got %v", f)
		}
	})

	t.Run("Malformed Amount", func(t *testing.T) {
		pax := fare("ADT", 1, "100", "20", "120")
		pax.Base = Money{Present: true, Malformed: "1O0"}
		c := record(func(rec Recorder) { CheckPassengerTotal(rec, "$.pax", &pax) })
		f := c.Failures()
		if len(f) != 1 || f[0].Kind != KindMalformed {
			t.Fatalf("expected one Malformed failure, got %v", f)
		}
		if !strings.Contains(f[0].Message, "1O0") {
			t.Errorf("message should quote the raw value, got %q", f[0].Message)
		}
	})
}

func TestCheckTaxSum(t *testing.T) {
	t.Run("Exact Sum Passes", func(t *testing.T) {
		c := record(func(rec Recorder) {
			CheckTaxSum(rec, "$.pax", "passengerTaxesAmount", fees("12.5", "7.5"), money("20"))
		})
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("No Rounding Applied", func(t *testing.T) {
		c := record(func(rec Recorder) {
			CheckTaxSum(rec, "$.pax", "passengerTaxesAmount", fees("12.501", "7.5"), money("20"))
		})
		f := c.Failures()
		if len(f) != 1 {
			t.Fatalf("expected one failure, got %v", f)
		}
		if f[0].Expected != "20.001" || f[0].Actual != "20" {
			t.Errorf("unexpected values %q / %q", f[0].Expected, f[0].Actual)
		}
	})

	t.Run("Empty List Against Zero", func(t *testing.T) {
		c := record(func(rec Recorder) {
			CheckTaxSum(rec, "$.pax", "passengerTaxesAmount", nil, Money{})
		})
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Malformed Line", func(t *testing.T) {
		bad := fees("12.5", "7.5")
		bad[1].Amount = Money{Present: true, Malformed: "x"}
		c := record(func(rec Recorder) {
			CheckTaxSum(rec, "$.pax", "passengerTaxesAmount", bad, money("20"))
		})
		f := c.Failures()
		if len(f) != 1 || f[0].Kind != KindMalformed || f[0].Path != "$.pax.taxesAndFees[1].amount" {
			t.Errorf("unexpected failures %v", f)
		}
	})
}

func TestCheckPriceDetails(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		c := record(func(rec Recorder) { CheckPriceDetailsTotal(rec, "$.pd", nil) })
		if f := c.Failures(); len(f) != 1 || f[0].Kind != KindMissingData {
			t.Errorf("unexpected failures %v", f)
		}
	})

	t.Run("Total Mismatch", func(t *testing.T) {
		pd := &PriceDetails{Base: money("275"), Taxes: money("55"), Total: money("331")}
		c := record(func(rec Recorder) { CheckPriceDetailsTotal(rec, "$.pd", pd) })
		if f := c.Failures(); len(f) != 1 || f[0].Expected != "330.00" {
			t.Errorf("unexpected failures %v", f)
		}
	})

	t.Run("Empty Offer Taxes Is A Note", func(t *testing.T) {
		pd := &PriceDetails{Base: money("275"), Taxes: money("55"), Total: money("330")}
		c := record(func(rec Recorder) { CheckPriceDetailsTaxes(rec, "$.pd", pd) })
		if c.Len() != 0 || len(c.Notes()) != 1 {
			t.Errorf("expected one note and no failures, got %v / %v", c.Failures(), c.Notes())
		}
	})
}

func TestCheckAggregateTotals(t *testing.T) {
	breakdown := []PassengerFare{
		fare("ADT", 2, "100", "20", "120"),
		fare("CHD", 1, "75", "15", "90"),
	}
	pd := &PriceDetails{Base: money("275"), Taxes: money("55"), Total: money("330")}

	t.Run("Counts From Payload", func(t *testing.T) {
		c := record(func(rec Recorder) {
			CheckAggregateTotals(rec, "$.offer", breakdown, pd, map[string]int{"ADT": 2, "CHD": 1})
		})
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Counts From Breakdown", func(t *testing.T) {
		c := record(func(rec Recorder) { CheckAggregateTotals(rec, "$.offer", breakdown, pd, nil) })
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Payload Overrides Breakdown", func(t *testing.T) {
		c := record(func(rec Recorder) {
			CheckAggregateTotals(rec, "$.offer", breakdown, pd, map[string]int{"ADT": 3, "CHD": 1})
		})
		if got := c.Len(); got != 3 {
			t.Errorf("expected total, base and taxes to fail, got %v", c.Failures())
		}
	})

	t.Run("Multiplier Fallback", func(t *testing.T) {
		pax := PassengerFare{PassengerTypeCode: "INF"}
		if n := PassengerMultiplier(&pax, nil); n != 1 {
			t.Errorf("expected 1, got %d", n)
		}
	})
}

func TestCheckFareArithmetic(t *testing.T) {
	adt := fare("ADT", 2, "100", "20", "120")
	adt.TaxesAndFees = fees("12.5", "7.5")
	chd := fare("CHD", 1, "75", "15", "90")
	chd.TaxesAndFees = fees("9", "6")
	pd := &PriceDetails{Base: money("275"), Taxes: money("55"), Total: money("330"), TaxesAndFees: fees("34", "21")}

	c := record(func(rec Recorder) {
		CheckFareArithmetic(rec, "$.offers[0]", []PassengerFare{adt, chd}, pd, nil, true)
	})
	if c.Len() != 0 {
		t.Errorf("consistent offer should pass, got %v", c.Failures())
	}

	chd.Total = money("91")
	c = record(func(rec Recorder) {
		CheckFareArithmetic(rec, "$.offers[0]", []PassengerFare{adt, chd}, pd, nil, false)
	})
	f := c.Failures()
	if len(f) != 1 || f[0].Path != "$.offers[0].passengerFareBreakdown[1].passengerTotalAmount" {
		t.Errorf("expected one failure on the child total, got %v", f)
	}
}

func TestCompareWithTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	d := decimal.RequireFromString

	t.Run("Equal Is Silent", func(t *testing.T) {
		c := record(func(rec Recorder) { CompareWithTolerance(rec, "$", "total", d("330"), d("330.00"), tol) })
		if c.Len() != 0 || len(c.Notes()) != 0 {
			t.Error("expected no entries")
		}
	})

	t.Run("Within Tolerance Is A Note", func(t *testing.T) {
		c := record(func(rec Recorder) { CompareWithTolerance(rec, "$", "total", d("330"), d("330.01"), tol) })
		if c.Len() != 0 || len(c.Notes()) != 1 {
			t.Errorf("expected one note, got %v / %v", c.Failures(), c.Notes())
		}
	})

	t.Run("Beyond Tolerance Fails", func(t *testing.T) {
		c := record(func(rec Recorder) { CompareWithTolerance(rec, "$", "total", d("330"), d("330.02"), tol) })
		if f := c.Failures(); len(f) != 1 || f[0].Actual != "330.02" {
			t.Errorf("unexpected failures %v", f)
		}
	})
}
