package testing

import (
	"encoding/base64"
	"fmt"
)

// Fixture constants shared by every response tree.
const (
	Currency      = "USD"
	Agency        = "AirCairo"
	TestCase      = "TC-001"
	Origin        = "JFK"
	Destination   = "LHR"
	SegmentID     = "SEG1"
	JourneyID     = "JRN1"
	PriceClassID  = "PC1"
	BaggageID     = "BG1"
	DepartureTime = "2025-03-01T08:30:00"
	ArrivalTime   = "2025-03-01T20:30:00"
)

// OfferID encodes an opaque offer id naming the agency, the way suppliers
// issue them.
func OfferID(agency, offer string) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("SUPPLIER=%s;OFFER=%s", agency, offer)))
}

// Money builds an amount object in the fixture currency.
func Money(amount float64) map[string]any {
	return map[string]any{"amount": amount, "currency": Currency}
}

func taxes(yq, yr float64) []any {
	return []any{
		map[string]any{"code": "YQ", "amount": Money(yq)},
		map[string]any{"code": "YR", "amount": Money(yr)},
	}
}

func segmentDetails() []any {
	return []any{map[string]any{
		"segmentRefId":        SegmentID,
		"rbd":                 "Y",
		"priceClassRefId":     PriceClassID,
		"baggageDetailsRefId": BaggageID,
	}}
}

// passenger builds one breakdown entry with base and YQ/YR taxes.
func passenger(code string, count int, base, yq, yr float64) map[string]any {
	return map[string]any{
		"passengerTypeCode":    code,
		"numberOfPassengers":   count,
		"passengerBaseAmount":  Money(base),
		"passengerTaxesAmount": Money(yq + yr),
		"passengerTotalAmount": Money(base + yq + yr),
		"taxesAndFees":         taxes(yq, yr),
		"segmentDetails":       segmentDetails(),
	}
}

// Offer builds a consistent offer for two adults and one child. The adult
// base fare is adtBase and the child's chdBase; taxes are fixed.
func Offer(id string, adtBase, chdBase float64) map[string]any {
	base := adtBase*2 + chdBase
	return map[string]any{
		"offerId": id,
		"priceDetails": map[string]any{
			"baseAmount":   Money(base),
			"taxesAmount":  Money(55),
			"totalAmount":  Money(base + 55),
			"taxesAndFees": taxes(34, 21),
		},
		"passengerFareBreakdown": []any{
			passenger("ADT", 2, adtBase, 12.5, 7.5),
			passenger("CHD", 1, chdBase, 9, 6),
		},
		"offerJourneys": []any{JourneyID},
		"haveBundles":   false,
		"canBeHeld":     true,
	}
}

func segments() map[string]any {
	return map[string]any{SegmentID: map[string]any{
		"origin":               Origin,
		"destination":          Destination,
		"departureDateTime":    DepartureTime,
		"arrivalDateTime":      ArrivalTime,
		"marketingCarrierCode": "MS",
	}}
}

func journeys(bundles ...string) map[string]any {
	journey := map[string]any{
		"segmentReferenceIds": []any{SegmentID},
		"numberOfStops":       0,
	}
	if len(bundles) > 0 {
		ids := make([]any, len(bundles))
		for i, b := range bundles {
			ids[i] = b
		}
		journey["bundleReferenceIds"] = ids
	}
	return map[string]any{JourneyID: journey}
}

func priceClasses() map[string]any {
	return map[string]any{PriceClassID: map[string]any{
		"priceClassName": "Economy Light",
		"fareType":       "PUBLIC",
		"rulesAndPenalties": []any{
			map[string]any{"type": "CANCEL", "text": "Non refundable"},
		},
	}}
}

func baggageDetails() map[string]any {
	return map[string]any{BaggageID: map[string]any{
		"carryOnBaggage": map[string]any{"pieces": 1, "weightKg": 8},
		"checkInBaggage": map[string]any{"pieces": 1, "weightKg": 23},
	}}
}

// SelectedOfferID is the id of the first, cheapest Search offer.
var SelectedOfferID = OfferID(Agency, "1")

// SearchResponse returns a valid Search response with two offers sorted by
// total: 330.00 and 360.00.
func SearchResponse() map[string]any {
	return map[string]any{
		"offers": []any{
			Offer(SelectedOfferID, 100, 75),
			Offer(OfferID(Agency, "2"), 110, 85),
		},
		"segments":       segments(),
		"journeys":       journeys(),
		"priceClasses":   priceClasses(),
		"baggageDetails": baggageDetails(),
	}
}

// SearchPayload returns the Search request: two adults and one child on
// one leg.
func SearchPayload() map[string]any {
	return map[string]any{
		"passengers": []any{
			map[string]any{"passengerTypeCode": "ADT", "count": 2},
			map[string]any{"passengerTypeCode": "CHD", "count": 1},
		},
		"searchCriteria": []any{
			map[string]any{"origin": Origin, "destination": Destination, "departureDate": "2025-03-01"},
		},
	}
}

// FareConfirmResponse returns a valid FareConfirm response confirming the
// selected Search offer unchanged.
func FareConfirmResponse() map[string]any {
	return map[string]any{
		"selectedOfferOptions": []any{Offer(SelectedOfferID, 100, 75)},
		"segments":             segments(),
		"journeys":             journeys("BND1"),
		"priceClasses":         priceClasses(),
		"baggageDetails":       baggageDetails(),
	}
}

// order returns the booked order. The breakdown is count-aggregated: the
// adult entry covers both adults.
func order() map[string]any {
	adult := passenger("ADT", 2, 200, 25, 15)
	child := passenger("CHD", 1, 75, 9, 6)
	return map[string]any{
		"priceDetails": map[string]any{
			"baseAmount":   Money(275),
			"taxesAmount":  Money(55),
			"totalAmount":  Money(330),
			"taxesAndFees": taxes(34, 21),
		},
		"passengerFareBreakdown": []any{adult, child},
	}
}

// BookResponse returns a valid Book response for the selected offer.
func BookResponse() map[string]any {
	return map[string]any{
		"ndcBookingReference": "NDC-123",
		"airlinePnr":          "ABC123",
		"gdsPnr":              "GDS456",
		"bookingToken":        "tok-789",
		"passengers": map[string]any{
			"PAX1": map[string]any{"passengerTypeCode": "ADT"},
			"PAX2": map[string]any{"passengerTypeCode": "ADT"},
			"PAX3": map[string]any{"passengerTypeCode": "CHD"},
		},
		"order":          order(),
		"segments":       segments(),
		"journeys":       journeys("BND2"),
		"priceClasses":   priceClasses(),
		"baggageDetails": baggageDetails(),
	}
}

// RetrieveResponse returns a Retrieve response equal to BookResponse.
func RetrieveResponse() map[string]any {
	return BookResponse()
}

// AddPaxPayload returns the AddPax request matching BookResponse.
func AddPaxPayload() map[string]any {
	return map[string]any{
		"Passengers": map[string]any{
			"PAX1": map[string]any{"PassengerTypeCode": "ADT"},
			"PAX2": map[string]any{"PassengerTypeCode": "ADT"},
			"PAX3": map[string]any{"PassengerTypeCode": "CHD"},
		},
	}
}

// ErrorResponse returns the body of a refused request listing one
// validation error per message.
func ErrorResponse(messages ...string) map[string]any {
	list := make([]any, len(messages))
	for i, m := range messages {
		list[i] = map[string]any{"PropertyName": fmt.Sprintf("Field%d", i+1), "ErrorMessage": m}
	}
	return map[string]any{"ValidationErrors": list}
}

// Set replaces the value at path inside a fixture tree. Path elements are
// object keys (string) or list indexes (int).
func Set(tree any, value any, path ...any) {
	parent, last := walk(tree, path)
	switch p := parent.(type) {
	case map[string]any:
		p[last.(string)] = value
	case []any:
		p[last.(int)] = value
	}
}

// Delete removes the object key at path inside a fixture tree.
func Delete(tree any, path ...any) {
	parent, last := walk(tree, path)
	if p, ok := parent.(map[string]any); ok {
		delete(p, last.(string))
	}
}

// Get returns the value at path inside a fixture tree.
func Get(tree any, path ...any) any {
	node := tree
	for _, step := range path {
		node = child(node, step)
	}
	return node
}

func walk(tree any, path []any) (parent any, last any) {
	if len(path) == 0 {
		panic("fixture path is empty")
	}
	return Get(tree, path[:len(path)-1]...), path[len(path)-1]
}

func child(node any, step any) any {
	switch s := step.(type) {
	case string:
		if m, ok := node.(map[string]any); ok {
			return m[s]
		}
	case int:
		if l, ok := node.([]any); ok && s < len(l) {
			return l[s]
		}
	}
	panic(fmt.Sprintf("fixture path step %v does not exist", step))
}
