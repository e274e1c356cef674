package farez

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	tree, err := decodeTree([]byte(s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return tree
}

func TestNormalize(t *testing.T) {
	t.Run("Null And Zero Service Charge Are Equal", func(t *testing.T) {
		book := decodeJSON(t, `{"order":{"priceDetails":{"totalAmount":{"amount":330,"currency":"USD"},"serviceChargeAmount":null}}}`)
		retrieve := decodeJSON(t, `{"order":{"priceDetails":{"totalAmount":{"amount":330.00,"currency":"USD"},"serviceChargeAmount":{"amount":0.00,"currency":"USD"}}}}`)

		if !TreesEqual(Normalize(book), Normalize(retrieve)) {
			t.Errorf("expected equal trees, diff:\n%s", cmp.Diff(Normalize(book), Normalize(retrieve), treeOptions))
		}
	})

	t.Run("Non Zero Service Charge Kept", func(t *testing.T) {
		tree := decodeJSON(t, `{"passengerServiceChargeAmount":{"amount":5,"currency":"USD"}}`)
		out := asObject(Normalize(tree))
		if _, ok := out["passengerServiceChargeAmount"]; !ok {
			t.Error("non-zero service charge must be kept")
		}
	})

	t.Run("Bundle Ids Only Inside Journeys", func(t *testing.T) {
		tree := decodeJSON(t, `{
			"journeys": {"JRN1": {"segmentReferenceIds": ["SEG1"], "bundleReferenceIds": ["BND1"]}},
			"offer": {"bundleReferenceIds": ["BND1"]}
		}`)
		out := asObject(Normalize(tree))
		journey := asObject(lookup(out, "journeys", "JRN1"))
		if _, ok := journey["bundleReferenceIds"]; ok {
			t.Error("bundle ids inside journeys must be removed")
		}
		if _, ok := asObject(out["offer"])["bundleReferenceIds"]; !ok {
			t.Error("bundle ids outside journeys must be kept")
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		tree := decodeJSON(t, `{
			"journeys": {"J": {"bundleReferenceIds": [], "x": [{"serviceChargeAmount": 0}]}},
			"list": [{"serviceChargeAmount": null}, {"serviceChargeAmount": {"amount": 1}}],
			"n": 1.50
		}`)
		once := Normalize(tree)
		twice := Normalize(once)
		if !TreesEqual(once, twice) {
			t.Errorf("normalize is not idempotent:\n%s", cmp.Diff(once, twice, treeOptions))
		}
	})

	t.Run("Input Untouched", func(t *testing.T) {
		tree := decodeJSON(t, `{"serviceChargeAmount": null}`)
		Normalize(tree)
		if _, ok := asObject(tree)["serviceChargeAmount"]; !ok {
			t.Error("Normalize must not mutate its input")
		}
	})
}

func TestTreesEqual(t *testing.T) {
	if !TreesEqual(json.Number("120.0"), json.Number("120.00")) {
		t.Error("numbers must compare by value")
	}
	if TreesEqual(json.Number("120.01"), json.Number("120.00")) {
		t.Error("different numbers must differ")
	}
}

func TestCompareTrees(t *testing.T) {
	a := decodeJSON(t, `{"segments":{"SEG1":{"origin":"JFK"}}}`)
	b := decodeJSON(t, `{"segments":{"SEG1":{"origin":"EWR"}}}`)
	c := record(func(rec Recorder) { CompareSubtree(rec, "segments", a, b) })
	f := c.Failures()
	if len(f) != 1 || f[0].Path != "$.segments" {
		t.Fatalf("unexpected failures %v", f)
	}
	if !strings.Contains(f[0].Message, "EWR") {
		t.Errorf("diff should show the differing value, got %q", f[0].Message)
	}
}

func TestCompareLists(t *testing.T) {
	expected := []any{"a", "b", "c"}
	actual := []any{"a", "x"}
	c := record(func(rec Recorder) { CompareLists(rec, "$.l", "list", expected, actual) })
	f := c.Failures()
	if len(f) != 2 {
		t.Fatalf("expected size and element mismatch, got %v", f)
	}
	if f[0].Expected != "3" || f[1].Path != "$.l[1]" {
		t.Errorf("unexpected failures %v", f)
	}
}

func TestCompareEntriesByKey(t *testing.T) {
	expected := []any{map[string]any{"code": "ADT", "total": json.Number("120")}}
	actual := []any{map[string]any{"code": "ADT", "total": json.Number("121"), "extra": true}}
	c := record(func(rec Recorder) { CompareEntriesByKey(rec, "$.bd", "breakdown", expected, actual) })
	f := c.Failures()
	if len(f) != 2 || f[0].Path != "$.bd[0].extra" || f[1].Path != "$.bd[0].total" {
		t.Errorf("keys of both sides are compared, got %v", f)
	}
}

func TestCompareObjects(t *testing.T) {
	expected := map[string]any{"status": "CONFIRMED", "id": "O1", "priceDetails": map[string]any{}}
	actual := map[string]any{"status": "CANCELLED", "id": "O1", "note": "late"}

	c := record(func(rec Recorder) { CompareObjects(rec, "$.order", "order", expected, actual, "priceDetails") })
	f := c.Failures()
	if len(f) != 2 || f[0].Path != "$.order.note" || f[1].Path != "$.order.status" {
		t.Errorf("unexpected failures %v", f)
	}

	c = record(func(rec Recorder) { CompareObjects(rec, "$.order", "order", actual, expected, "priceDetails") })
	if c.Len() != 2 {
		t.Errorf("comparison must be symmetric, got %v", c.Failures())
	}
}

func TestComparePriceAmounts(t *testing.T) {
	expected := &PriceDetails{Total: money("330"), Base: money("275"), Taxes: money("55")}

	t.Run("Equal", func(t *testing.T) {
		actual := &PriceDetails{Total: money("330.00"), Base: money("275"), Taxes: money("55")}
		if c := record(func(rec Recorder) { ComparePriceAmounts(rec, "$.pd", expected, actual) }); c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Amount Only On Actual Side", func(t *testing.T) {
		actual := &PriceDetails{Total: money("330"), Base: money("275"), Taxes: money("55"), Discount: money("7")}
		c := record(func(rec Recorder) { ComparePriceAmounts(rec, "$.pd", expected, actual) })
		f := c.Failures()
		if len(f) != 1 || f[0].Path != "$.pd.discountAmount" || f[0].Actual != "7.00" {
			t.Errorf("unexpected failures %v", f)
		}
	})

	t.Run("Currency Differs", func(t *testing.T) {
		actual := &PriceDetails{Total: money("330"), Base: money("275"), Taxes: money("55")}
		actual.Total.Currency = "EUR"
		c := record(func(rec Recorder) { ComparePriceAmounts(rec, "$.pd", expected, actual) })
		if f := c.Failures(); len(f) != 1 || f[0].Path != "$.pd.totalAmount.currency" {
			t.Errorf("unexpected failures %v", f)
		}
	})

	t.Run("Missing Side", func(t *testing.T) {
		c := record(func(rec Recorder) { ComparePriceAmounts(rec, "$.pd", expected, nil) })
		if f := c.Failures(); len(f) != 1 || f[0].Kind != KindMissingData {
			t.Errorf("unexpected failures %v", f)
		}
	})
}

func TestCompareOfferFlagsAndTotals(t *testing.T) {
	yes, no := true, false
	c := record(func(rec Recorder) {
		CompareOfferFlags(rec, "$.o", &Offer{HaveBundles: &no, CanBeHeld: &yes}, &Offer{HaveBundles: &yes})
	})
	if c.Len() != 2 {
		t.Errorf("expected both flags to mismatch, got %v", c.Failures())
	}

	c = record(func(rec Recorder) {
		ComparePriceTotals(rec, "$.pd",
			&PriceDetails{Total: money("330"), Taxes: money("55"), Base: money("275")},
			&PriceDetails{Total: money("330.00"), Taxes: money("55"), Base: money("275.01")})
	})
	if f := c.Failures(); len(f) != 1 || f[0].Path != "$.pd.baseAmount" {
		t.Errorf("unexpected failures %v", f)
	}

	c = record(func(rec Recorder) { ComparePriceTotals(rec, "$.pd", nil, &PriceDetails{}) })
	if f := c.Failures(); len(f) != 1 || f[0].Kind != KindMissingData {
		t.Errorf("unexpected failures %v", f)
	}
}

func TestComparePassengerAmountsAndRBD(t *testing.T) {
	expected := []PassengerFare{fare("ADT", 2, "100", "20", "120"), fare("CHD", 1, "75", "15", "90")}
	expected[0].SegmentDetails = refs("SEG1", "SEG2")
	actual := []PassengerFare{fare("ADT", 2, "100", "20", "120")}
	actual[0].SegmentDetails = refs("SEG1", "SEG2")
	actual[0].SegmentDetails[1].RBD = "M"

	c := record(func(rec Recorder) { ComparePassengerAmounts(rec, "$.bd", expected, actual) })
	if f := c.Failures(); len(f) != 1 || !strings.Contains(f[0].Message, "CHD") {
		t.Errorf("unexpected failures %v", f)
	}

	c = record(func(rec Recorder) { CompareRBD(rec, "$.bd", expected, actual) })
	f := c.Failures()
	if len(f) != 2 {
		t.Fatalf("expected RBD mismatch and missing type, got %v", f)
	}
	if f[0].Expected != "Y" || f[0].Actual != "M" || f[0].Path != "$.bd[0].segmentDetails[1].rbd" {
		t.Errorf("unexpected RBD failure %+v", f[0])
	}
}

func TestCompareBreakdownTypeOnlyOnActualSide(t *testing.T) {
	expected := []PassengerFare{fare("ADT", 2, "100", "20", "120")}
	actual := []PassengerFare{fare("ADT", 2, "100", "20", "120"), fare("INF", 1, "10", "0", "10")}

	for name, compare := range map[string]func(Recorder, string, []PassengerFare, []PassengerFare){
		"Amounts": ComparePassengerAmounts,
		"RBD":     CompareRBD,
	} {
		t.Run(name, func(t *testing.T) {
			c := record(func(rec Recorder) { compare(rec, "$.bd", expected, actual) })
			f := c.Failures()
			if len(f) != 1 || f[0].Path != "$.bd[1]" || !strings.Contains(f[0].Message, "INF") {
				t.Errorf("unexpected failures %v", f)
			}
		})
	}

	t.Run("Type Codes Match Case Insensitively", func(t *testing.T) {
		lower := []PassengerFare{fare("adt", 2, "100", "20", "120")}
		c := record(func(rec Recorder) {
			ComparePassengerAmounts(rec, "$.bd", expected, lower)
			CompareRBD(rec, "$.bd", expected, lower)
		})
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})
}

func TestCompareQuoteWithBooking(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	quote := []PassengerFare{fare("ADT", 2, "100", "20", "120"), fare("CHD", 1, "75", "15", "90")}

	t.Run("Quote Times Count", func(t *testing.T) {
		booked := []PassengerFare{fare("ADT", 2, "200", "40", "240"), fare("CHD", 1, "75", "15", "90")}
		c := record(func(rec Recorder) {
			CompareQuoteWithBooking(rec, "$.order", quote, booked, map[string]int{"ADT": 2, "CHD": 1}, tol)
		})
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Count From Quote Without Payload Counts", func(t *testing.T) {
		booked := []PassengerFare{fare("ADT", 2, "200", "40", "240"), fare("CHD", 1, "75", "15", "90")}
		c := record(func(rec Recorder) { CompareQuoteWithBooking(rec, "$.order", quote, booked, nil, tol) })
		if c.Len() != 0 {
			t.Errorf("one aggregated entry per type must match the quote count, got %v", c.Failures())
		}
	})

	t.Run("Split Booking Entries Are Summed", func(t *testing.T) {
		booked := []PassengerFare{
			fare("ADT", 1, "100", "20", "120"),
			fare("ADT", 1, "100", "20", "120.01"),
			fare("CHD", 1, "75", "15", "90"),
		}
		c := record(func(rec Recorder) { CompareQuoteWithBooking(rec, "$.order", quote, booked, nil, tol) })
		if c.Len() != 0 || len(c.Notes()) != 1 {
			t.Errorf("expected one tolerance note, got %v / %v", c.Failures(), c.Notes())
		}
	})

	t.Run("Not Booked", func(t *testing.T) {
		booked := []PassengerFare{fare("ADT", 2, "200", "40", "240")}
		c := record(func(rec Recorder) {
			CompareQuoteWithBooking(rec, "$.order", quote, booked, map[string]int{"ADT": 2}, tol)
		})
		if f := c.Failures(); len(f) != 1 || !strings.Contains(f[0].Message, "CHD") {
			t.Errorf("unexpected failures %v", f)
		}
	})

	t.Run("Booked But Not Quoted", func(t *testing.T) {
		booked := []PassengerFare{
			fare("ADT", 2, "200", "40", "240"),
			fare("CHD", 1, "75", "15", "90"),
			fare("INF", 1, "10", "0", "10"),
		}
		c := record(func(rec Recorder) { CompareQuoteWithBooking(rec, "$.order", quote, booked, nil, tol) })
		f := c.Failures()
		if len(f) != 1 || f[0].Path != "$.order[2]" || !strings.Contains(f[0].Message, "booked but not quoted") {
			t.Errorf("unexpected failures %v", f)
		}
	})
}

func TestComparePriceDetailsWithTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	expected := &PriceDetails{Total: money("330"), Base: money("275"), Taxes: money("55")}
	actual := &PriceDetails{Total: money("330.01"), Base: money("275"), Taxes: money("55"), ServiceCharge: money("0")}
	c := record(func(rec Recorder) { ComparePriceDetailsWithTolerance(rec, "$.pd", expected, actual, tol) })
	if c.Len() != 0 || len(c.Notes()) != 1 {
		t.Errorf("expected one note, got %v / %v", c.Failures(), c.Notes())
	}
}

func TestCompareAddPaxPassengers(t *testing.T) {
	addPax := &AddPaxPayload{Passengers: map[string]AddPaxPassenger{
		"PAX1": {PassengerTypeCode: "ADT"},
		"PAX2": {PassengerTypeCode: "CHD"},
	}}

	t.Run("Match", func(t *testing.T) {
		booked := map[string]BookedPassenger{"PAX1": {"ADT"}, "PAX2": {"CHD"}}
		c := record(func(rec Recorder) { CompareAddPaxPassengers(rec, "$.passengers", booked, addPax) })
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Type Case Ignored", func(t *testing.T) {
		booked := map[string]BookedPassenger{"PAX1": {"adt"}, "PAX2": {"Chd"}}
		c := record(func(rec Recorder) { CompareAddPaxPassengers(rec, "$.passengers", booked, addPax) })
		if c.Len() != 0 {
			t.Errorf("unexpected failures %v", c.Failures())
		}
	})

	t.Run("Type Mismatch And Extra", func(t *testing.T) {
		booked := map[string]BookedPassenger{"PAX1": {"ADT"}, "PAX2": {"INF"}, "PAX3": {"ADT"}}
		c := record(func(rec Recorder) { CompareAddPaxPassengers(rec, "$.passengers", booked, addPax) })
		f := c.Failures()
		if len(f) != 3 {
			t.Fatalf("expected count, type and extra failures, got %v", f)
		}
		if f[1].Path != "$.passengers.PAX2.passengerTypeCode" || f[2].Path != "$.passengers.PAX3" {
			t.Errorf("unexpected failures %v", f)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		c := record(func(rec Recorder) { CompareAddPaxPassengers(rec, "$.passengers", nil, addPax) })
		if f := c.Failures(); len(f) != 1 || f[0].Kind != KindMissingData {
			t.Errorf("unexpected failures %v", f)
		}
	})
}

func TestCompareBookingContext(t *testing.T) {
	want := BookingContext{NDCBookingReference: "N", AirlinePNR: "A", GDSPNR: "G", BookingToken: "T"}
	got := want
	got.AirlinePNR = "B"
	c := record(func(rec Recorder) { CompareBookingContext(rec, want, got) })
	if f := c.Failures(); len(f) != 1 || f[0].Path != "$.airlinePnr" {
		t.Errorf("unexpected failures %v", f)
	}
}
