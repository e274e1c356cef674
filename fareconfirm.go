package farez

import "context"

// Rule names recorded by the FareConfirm suite.
const (
	RuleSelectedOfferCount = "selected-offer-count"
	RuleRequiredAmounts    = "required-amounts"
	RulePriceClasses       = "price-classes"
	RuleBaggageDetails     = "baggage-details"
	RuleSearchOfferMatch   = "search-offer-match"
)

// FareConfirmInput is everything needed to validate one FareConfirm
// response. SearchOffer is the offer selected at Search; without it the
// cross-step comparison is skipped.
type FareConfirmInput struct {
	Response    *FareConfirmResponse
	SearchOffer *Offer
	Payload     *SearchPayload
	Status      int
}

type fareConfirmRun struct {
	FareConfirmInput
	collector *Collector
	cfg       Config
}

func (r *fareConfirmRun) Collector() *Collector { return r.collector }

func (r *fareConfirmRun) legs() []Leg {
	if r.Payload == nil {
		return nil
	}
	return r.Payload.SearchCriteria
}

// offerPath is where the confirmed offer lives in the response.
var offerPath = index(field(Root, "selectedOfferOptions"), 0)

// withOffer calls fn with the confirmed offer, if there is one. A missing
// offer is reported once by the selected-offer-count rule.
func (r *fareConfirmRun) withOffer(fn func(offer *Offer)) {
	if offer := r.Response.Offer(); offer != nil {
		fn(offer)
	}
}

// ValidateFareConfirm validates a FareConfirm response, and compares it with
// the Search offer it confirms.
func (e *Engine) ValidateFareConfirm(ctx context.Context, in FareConfirmInput) (*Report, error) {
	run := &fareConfirmRun{FareConfirmInput: in, cfg: e.cfg, collector: e.newCollector()}
	return validate(ctx, e, e.fareConfirm, StageFareConfirm, gate{status: in.Status, present: in.Response != nil}, run)
}

func newFareConfirmStage() *Stage[*fareConfirmRun] {
	return NewStage[*fareConfirmRun]("fare-confirm",
		Check(RuleSelectedOfferCount, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			CheckSelectedOfferCount(rec, run.Response)
		}),
		NewPrerequisite("searched-legs-journeys", hasLegs[*fareConfirmRun],
			Check(RuleJourneyCount, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
				run.withOffer(func(offer *Offer) {
					CheckJourneyCount(rec, offerPath, offer, run.legs())
				})
			}),
		),
		Check(RuleFareArithmetic, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			run.withOffer(func(offer *Offer) {
				CheckFareArithmetic(rec, offerPath, offer.PassengerFareBreakdown, offer.PriceDetails, run.Payload.Counts(), true)
			})
		}),
		Check(RuleTaxCodes, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			run.withOffer(func(offer *Offer) {
				checkOfferTaxCodes(rec, offerPath, offer.PassengerFareBreakdown, offer.PriceDetails)
			})
		}),
		Check(RulePassengerTypes, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			run.withOffer(func(offer *Offer) {
				CheckUniquePassengerTypes(rec, field(offerPath, "passengerFareBreakdown"), offer.PassengerFareBreakdown)
			})
		}),
		Check(RuleRequiredAmounts, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			run.withOffer(func(offer *Offer) {
				CheckRequiredAmounts(rec, field(offerPath, "passengerFareBreakdown"), offer.PassengerFareBreakdown)
			})
		}),
		Check(RulePriceClasses, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			CheckPriceClasses(rec, &run.Response.Catalog)
		}),
		Check(RuleBaggageDetails, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			CheckBaggageDetails(rec, &run.Response.Catalog)
		}),
		Check(RuleReferences, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			run.withOffer(func(offer *Offer) {
				CheckOfferReferences(rec, offerPath, offer, &run.Response.Catalog)
			})
			CheckJourneySegments(rec, &run.Response.Catalog)
		}),
		Check(RuleCurrency, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
			run.withOffer(func(offer *Offer) {
				CheckCurrencies(rec, offerPath, CurrencyScope{Breakdown: offer.PassengerFareBreakdown, PriceDetails: offer.PriceDetails}, run.cfg)
			})
		}),
		NewPrerequisite("search-offer-available",
			func(_ context.Context, run *fareConfirmRun) (bool, string) {
				return run.SearchOffer != nil, "no Search offer to compare with"
			},
			Check(RuleSearchOfferMatch, func(_ context.Context, run *fareConfirmRun, rec Recorder) {
				run.withOffer(func(offer *Offer) {
					bd := field(offerPath, "passengerFareBreakdown")
					CompareRBD(rec, bd, run.SearchOffer.PassengerFareBreakdown, offer.PassengerFareBreakdown)
					CompareOfferFlags(rec, offerPath, run.SearchOffer, offer)
					ComparePriceTotals(rec, field(offerPath, "priceDetails"), run.SearchOffer.PriceDetails, offer.PriceDetails)
					ComparePassengerAmounts(rec, bd, run.SearchOffer.PassengerFareBreakdown, offer.PassengerFareBreakdown)
				})
			}),
		),
	)
}
