package farez

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
)

// Count is a tolerant integer such as numberOfPassengers or numberOfStops.
// Numbers and numeric strings are accepted.
type Count struct {
	Value   int
	Present bool
}

// UnmarshalJSON decodes a number, a numeric string or null.
func (c *Count) UnmarshalJSON(data []byte) error {
	*c = Count{}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	if n, ok := raw.(json.Number); ok {
		raw = n.String()
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return nil
	}
	c.Value, c.Present = v, true
	return nil
}

// MarshalJSON encodes the count, or null when absent.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Present {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// TaxFee is one line of a taxesAndFees list.
type TaxFee struct {
	Code   string `json:"code"`
	Amount Money  `json:"amount"`
}

// SegmentRef links a passenger's fare to one flight segment.
type SegmentRef struct {
	SegmentRefID        string `json:"segmentRefId"`
	RBD                 string `json:"rbd"`
	PriceClassRefID     string `json:"priceClassRefId,omitempty"`
	BaggageDetailsRefID string `json:"baggageDetailsRefId,omitempty"`
	// RBDPresent is false when rbd was absent or null.
	RBDPresent bool `json:"-"`
}

// UnmarshalJSON accepts both segmentRefId and segmentReferenceId; the API
// uses the first on Search and the second on Book.
func (s *SegmentRef) UnmarshalJSON(data []byte) error {
	var wire struct {
		SegmentRefID        string  `json:"segmentRefId"`
		SegmentReferenceID  string  `json:"segmentReferenceId"`
		RBD                 *string `json:"rbd"`
		PriceClassRefID     string  `json:"priceClassRefId"`
		BaggageDetailsRefID string  `json:"baggageDetailsRefId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = SegmentRef{
		SegmentRefID:        wire.SegmentRefID,
		PriceClassRefID:     wire.PriceClassRefID,
		BaggageDetailsRefID: wire.BaggageDetailsRefID,
	}
	if s.SegmentRefID == "" {
		s.SegmentRefID = wire.SegmentReferenceID
	}
	if wire.RBD != nil {
		s.RBD, s.RBDPresent = *wire.RBD, true
	}
	return nil
}

// PassengerFare is one entry of a passengerFareBreakdown list.
type PassengerFare struct {
	PassengerTypeCode  string       `json:"passengerTypeCode"`
	NumberOfPassengers Count        `json:"numberOfPassengers"`
	Base               Money        `json:"passengerBaseAmount"`
	Taxes              Money        `json:"passengerTaxesAmount"`
	Discount           Money        `json:"passengerDiscountAmount"`
	ServiceCharge      Money        `json:"passengerServiceChargeAmount"`
	Total              Money        `json:"passengerTotalAmount"`
	TaxesAndFees       []TaxFee     `json:"taxesAndFees"`
	SegmentDetails     []SegmentRef `json:"segmentDetails"`
}

// PriceDetails is the offer-level price.
type PriceDetails struct {
	Base          Money    `json:"baseAmount"`
	Taxes         Money    `json:"taxesAmount"`
	Discount      Money    `json:"discountAmount"`
	ServiceCharge Money    `json:"serviceChargeAmount"`
	Total         Money    `json:"totalAmount"`
	TaxesAndFees  []TaxFee `json:"taxesAndFees"`
}

// Segment is one flight leg, keyed by its reference id in the root
// segments map.
type Segment struct {
	Origin               string `json:"origin"`
	Destination          string `json:"destination"`
	DepartureDateTime    string `json:"departureDateTime"`
	ArrivalDateTime      string `json:"arrivalDateTime"`
	MarketingCarrierCode string `json:"marketingCarrierCode,omitempty"`
	OperatingCarrierCode string `json:"operatingCarrierCode,omitempty"`
}

// Journey is an ordered chain of segments, keyed by journey id.
type Journey struct {
	SegmentReferenceIDs []string `json:"segmentReferenceIds"`
	NumberOfStops       Count    `json:"numberOfStops"`
	BundleReferenceIDs  []string `json:"bundleReferenceIds,omitempty"`
}

// PriceClass describes the fare family of a segment.
type PriceClass struct {
	PriceClassName    string `json:"priceClassName"`
	FareType          string `json:"fareType"`
	RulesAndPenalties []any  `json:"rulesAndPenalties"`
}

// BaggageDetail describes the allowance of a segment.
type BaggageDetail struct {
	CarryOnBaggage any `json:"carryOnBaggage"`
	CheckInBaggage any `json:"checkInBaggage"`
}

// Offer is a priced, bookable itinerary.
type Offer struct {
	OfferID                string          `json:"offerId"`
	PriceDetails           *PriceDetails   `json:"priceDetails"`
	PassengerFareBreakdown []PassengerFare `json:"passengerFareBreakdown"`
	Journeys               []string        `json:"offerJourneys"`
	HaveBundles            *bool           `json:"haveBundles,omitempty"`
	CanBeHeld              *bool           `json:"canBeHeld,omitempty"`
	BookingFlow            string          `json:"bookingFlow,omitempty"`
	// Raw is the offer as a generic JSON tree.
	Raw map[string]any `json:"-"`
}

// UnmarshalJSON accepts both offerJourneys and journeys for the offer's
// journey list.
func (o *Offer) UnmarshalJSON(data []byte) error {
	type plain Offer
	var wire struct {
		plain
		LegacyJourneys []string `json:"journeys"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*o = Offer(wire.plain)
	if o.Journeys == nil {
		o.Journeys = wire.LegacyJourneys
	}
	raw, err := decodeTree(data)
	if err != nil {
		return err
	}
	o.Raw, _ = raw.(map[string]any)
	return nil
}

// Flow returns the offer's booking flow in lower case, "book" when unset.
func (o *Offer) Flow() string {
	if strings.TrimSpace(o.BookingFlow) == "" {
		return BookingFlowBook
	}
	return strings.ToLower(strings.TrimSpace(o.BookingFlow))
}

// Catalog holds the root-level lookup maps shared by every response shape.
type Catalog struct {
	Segments       map[string]Segment       `json:"segments"`
	Journeys       map[string]Journey       `json:"journeys"`
	PriceClasses   map[string]PriceClass    `json:"priceClasses"`
	BaggageDetails map[string]BaggageDetail `json:"baggageDetails"`
}

// SearchResponse is the body of a Search call.
type SearchResponse struct {
	Catalog
	Offers []Offer `json:"offers"`
	Raw    any     `json:"-"`
}

// FareConfirmResponse is the body of a FareConfirm call.
type FareConfirmResponse struct {
	Catalog
	SelectedOfferOptions []Offer `json:"selectedOfferOptions"`
	Raw                  any     `json:"-"`
}

// Offer returns the confirmed offer, selectedOfferOptions[0], or nil.
func (r *FareConfirmResponse) Offer() *Offer {
	if r == nil || len(r.SelectedOfferOptions) == 0 {
		return nil
	}
	return &r.SelectedOfferOptions[0]
}

// Order is the priced content of a booking.
type Order struct {
	PriceDetails           *PriceDetails   `json:"priceDetails"`
	PassengerFareBreakdown []PassengerFare `json:"passengerFareBreakdown"`
}

// BookedPassenger is one entry of a booking's passengers map.
type BookedPassenger struct {
	PassengerTypeCode string `json:"passengerTypeCode"`
}

// BookingResponse is the body of a Book or Retrieve call.
type BookingResponse struct {
	Catalog
	NDCBookingReference *string                    `json:"ndcBookingReference"`
	AirlinePNR          *string                    `json:"airlinePnr"`
	GDSPNR              *string                    `json:"gdsPnr"`
	BookingToken        *string                    `json:"bookingToken"`
	Passengers          map[string]BookedPassenger `json:"passengers"`
	Order               *Order                     `json:"order"`
	Raw                 any                        `json:"-"`
}

// Context extracts the carry-over identifiers of this booking.
func (r *BookingResponse) Context() BookingContext {
	return BookingContext{
		NDCBookingReference: deref(r.NDCBookingReference),
		AirlinePNR:          deref(r.AirlinePNR),
		GDSPNR:              deref(r.GDSPNR),
		BookingToken:        deref(r.BookingToken),
	}
}

// BookingContext is the booking reference, PNRs and token saved after Book
// so a later Retrieve can be compared against them.
type BookingContext struct {
	NDCBookingReference string `json:"ndcBookingReference" msgpack:"ndc_booking_reference"`
	AirlinePNR          string `json:"airlinePnr" msgpack:"airline_pnr"`
	GDSPNR              string `json:"gdsPnr" msgpack:"gds_pnr"`
	BookingToken        string `json:"bookingToken" msgpack:"booking_token"`
}

// PassengerCount is one entry of a search payload's passengers list.
type PassengerCount struct {
	PassengerTypeCode string `json:"passengerTypeCode"`
	Count             Count  `json:"count"`
}

// Leg is one origin/destination pair of the search criteria.
type Leg struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departureDate,omitempty"`
}

// SearchPayload is the request body echoed from the Search call.
type SearchPayload struct {
	Passengers     []PassengerCount `json:"passengers"`
	SearchCriteria []Leg            `json:"searchCriteria"`
}

// Counts returns passenger counts per upper-cased type code. A type listed
// twice is summed.
func (p *SearchPayload) Counts() map[string]int {
	if p == nil || len(p.Passengers) == 0 {
		return nil
	}
	counts := make(map[string]int, len(p.Passengers))
	for _, pc := range p.Passengers {
		counts[typeCode(pc.PassengerTypeCode)] += pc.Count.Value
	}
	return counts
}

// AddPaxPassenger is one passenger of an AddPax request.
type AddPaxPassenger struct {
	PassengerTypeCode string `json:"PassengerTypeCode"`
}

// AddPaxPayload is the AddPax request body, keyed by passenger id.
type AddPaxPayload struct {
	Passengers map[string]AddPaxPassenger `json:"Passengers"`
}

// typeCode is the form passenger type codes are matched in.
func typeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
