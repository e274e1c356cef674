package farez

import (
	"context"
	"fmt"
)

// Rule names recorded by the Book suite.
const (
	RuleBookingIdentifiers = "booking-identifiers"
	RuleOrderPresent       = "order-present"
	RuleAddPaxPassengers   = "passengers-match-addpax"
	RuleFareConfirmMatch   = "fare-confirm-match"
	RuleSearchOfferRBD     = "search-offer-rbd"
)

// BookInput is everything needed to validate one Book response.
// FareConfirm is the snapshot captured for the booked offer and SearchOffer
// the offer selected at Search; either may be nil, which skips the
// comparisons that need it.
type BookInput struct {
	Response    *BookingResponse
	FareConfirm *FareConfirmResponse
	SearchOffer *Offer
	Payload     *SearchPayload
	AddPax      *AddPaxPayload
	Status      int
}

// bookedFlow returns the booking flow the booked offer declares.
func (in BookInput) bookedFlow() string {
	if in.FareConfirm != nil {
		if offer := in.FareConfirm.Offer(); offer != nil {
			return offer.Flow()
		}
	}
	if in.SearchOffer != nil {
		return in.SearchOffer.Flow()
	}
	return BookingFlowBook
}

type bookRun struct {
	BookInput
	collector *Collector
	cfg       Config
}

func (r *bookRun) Collector() *Collector { return r.collector }

var (
	orderPath     = field(Root, "order")
	orderFarePath = field(orderPath, "passengerFareBreakdown")
)

// withOrder calls fn with the booked order, if there is one. A missing order
// is reported once by the order-present rule.
func (r *bookRun) withOrder(fn func(order *Order)) {
	if r.Response.Order != nil {
		fn(r.Response.Order)
	}
}

// ValidateBooking validates a Book response, and compares it with the
// FareConfirm snapshot and Search offer it books. When the booked offer's
// booking flow differs from the configured flow the suite is skipped as a
// whole.
func (e *Engine) ValidateBooking(ctx context.Context, in BookInput) (*Report, error) {
	run := &bookRun{BookInput: in, cfg: e.cfg, collector: e.newCollector()}
	g := gate{status: in.Status, present: in.Response != nil}
	if flow := in.bookedFlow(); flow != e.cfg.flow() {
		g.skip = fmt.Sprintf("offer booking flow %q does not match configured flow %q", flow, e.cfg.flow())
	}
	return validate(ctx, e, e.book, StageBook, g, run)
}

func newBookStage() *Stage[*bookRun] {
	return NewStage[*bookRun]("book",
		Check(RuleBookingIdentifiers, func(_ context.Context, run *bookRun, rec Recorder) {
			CheckBookingIdentifiers(rec, run.Response)
		}),
		Check(RuleOrderPresent, func(_ context.Context, run *bookRun, rec Recorder) {
			order := run.Response.Order
			if order == nil {
				rec.Missing(orderPath, "order is missing")
				return
			}
			if order.PassengerFareBreakdown == nil {
				rec.Missing(orderFarePath, "order.passengerFareBreakdown is missing")
			}
			if order.PriceDetails == nil {
				rec.Missing(field(orderPath, "priceDetails"), "order.priceDetails is missing")
			}
		}),
		NewPrerequisite("addpax-available",
			func(_ context.Context, run *bookRun) (bool, string) {
				return run.AddPax != nil, "no AddPax payload to compare with"
			},
			Check(RuleAddPaxPassengers, func(_ context.Context, run *bookRun, rec Recorder) {
				CompareAddPaxPassengers(rec, field(Root, "passengers"), run.Response.Passengers, run.AddPax)
			}),
		),
		Check(RuleFareArithmetic, func(_ context.Context, run *bookRun, rec Recorder) {
			run.withOrder(func(order *Order) {
				CheckFareArithmetic(rec, orderPath, order.PassengerFareBreakdown, order.PriceDetails, nil, false)
			})
		}),
		Check(RuleReferences, func(_ context.Context, run *bookRun, rec Recorder) {
			run.withOrder(func(order *Order) {
				CheckBreakdownReferences(rec, orderFarePath, order.PassengerFareBreakdown, &run.Response.Catalog)
			})
			CheckJourneySegments(rec, &run.Response.Catalog)
		}),
		Check(RuleTaxCodes, func(_ context.Context, run *bookRun, rec Recorder) {
			run.withOrder(func(order *Order) {
				checkOfferTaxCodes(rec, orderPath, order.PassengerFareBreakdown, order.PriceDetails)
			})
		}),
		Check(RuleCurrency, func(_ context.Context, run *bookRun, rec Recorder) {
			run.withOrder(func(order *Order) {
				CheckCurrencies(rec, orderPath, CurrencyScope{Breakdown: order.PassengerFareBreakdown, PriceDetails: order.PriceDetails}, run.cfg)
			})
		}),
		NewPrerequisite("fare-confirm-snapshot",
			func(_ context.Context, run *bookRun) (bool, string) {
				return run.FareConfirm != nil, "no FareConfirm snapshot for the booked offer"
			},
			Check(RuleFareConfirmMatch, compareWithFareConfirm),
		),
		NewPrerequisite("search-offer-available",
			func(_ context.Context, run *bookRun) (bool, string) {
				return run.SearchOffer != nil, "no Search offer to compare with"
			},
			Check(RuleSearchOfferRBD, func(_ context.Context, run *bookRun, rec Recorder) {
				run.withOrder(func(order *Order) {
					CompareRBD(rec, orderFarePath, run.SearchOffer.PassengerFareBreakdown, order.PassengerFareBreakdown)
				})
			}),
		),
	)
}

// compareWithFareConfirm compares a booking with the FareConfirm snapshot
// of its offer. Catalog subtrees must be equal after normalization; amounts
// must agree under the rounding tolerance, with per-unit quoted amounts
// multiplied by the passenger count.
func compareWithFareConfirm(_ context.Context, run *bookRun, rec Recorder) {
	snapshot, booked := Normalize(run.FareConfirm.Raw), Normalize(run.Response.Raw)
	for _, key := range []string{"journeys", "segments", "baggageDetails"} {
		CompareSubtree(rec, key, snapshot, booked)
	}

	quote := run.FareConfirm.Offer()
	if quote == nil {
		rec.Missing(offerPath, "FareConfirm snapshot has no selected offer")
		return
	}
	run.withOrder(func(order *Order) {
		tolerance := run.cfg.tolerance()
		ComparePriceDetailsWithTolerance(rec, field(orderPath, "priceDetails"), quote.PriceDetails, order.PriceDetails, tolerance)
		CompareQuoteWithBooking(rec, orderFarePath, quote.PassengerFareBreakdown, order.PassengerFareBreakdown, run.Payload.Counts(), tolerance)
	})
}
