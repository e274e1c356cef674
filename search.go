package farez

import "context"

// Rule names recorded by the Search suite. Rules shared with later stages
// keep the same name there.
const (
	RuleOffersPresent     = "offers-present"
	RuleOfferIDsUnique    = "offer-ids-unique"
	RuleOffersSorted      = "offers-sorted"
	RuleOffersDistinct    = "offers-distinct"
	RuleJourneyStops      = "journey-stops"
	RuleJourneySegments   = "journey-segments"
	RuleReferences        = "references"
	RuleFareArithmetic    = "fare-arithmetic"
	RuleCurrency          = "currency"
	RulePassengerTypes    = "passenger-types"
	RulePayloadPassengers = "payload-passengers"
	RuleTaxCodes          = "tax-codes"
	RuleRBD               = "rbd"
	RuleSegmentCoverage   = "segment-coverage"
	RuleJourneyCount      = "journey-count"
	RuleSegmentTiming     = "segment-timing"
	RuleJourneyChaining   = "journey-chaining"
	RuleOfferIDEncoding   = "offer-id-encoding"
	RuleCompleteness      = "completeness"
)

// SearchInput is everything needed to validate one Search response.
type SearchInput struct {
	Response *SearchResponse
	Payload  *SearchPayload
	Status   int
}

type searchRun struct {
	SearchInput
	collector *Collector
	cfg       Config
}

func (r *searchRun) Collector() *Collector { return r.collector }

func (r *searchRun) legs() []Leg {
	if r.Payload == nil {
		return nil
	}
	return r.Payload.SearchCriteria
}

// eachOffer calls fn for every offer with its path.
func (r *searchRun) eachOffer(fn func(path string, offer *Offer)) {
	base := field(Root, "offers")
	for i := range r.Response.Offers {
		fn(index(base, i), &r.Response.Offers[i])
	}
}

// ValidateSearchOffer validates a Search response against its request
// payload. The returned error is non-nil only for host defects; findings are
// in the Report.
func (e *Engine) ValidateSearchOffer(ctx context.Context, in SearchInput) (*Report, error) {
	run := &searchRun{SearchInput: in, cfg: e.cfg, collector: e.newCollector()}
	return validate(ctx, e, e.search, StageSearch, gate{status: in.Status, present: in.Response != nil}, run)
}

// hasLegs guards checks that compare against the searched legs.
func hasLegs[T interface {
	Subject
	legs() []Leg
}](_ context.Context, run T) (bool, string) {
	return len(run.legs()) > 0, "search payload has no search criteria"
}

func newSearchStage() *Stage[*searchRun] {
	return NewStage[*searchRun]("search",
		Check(RuleOffersPresent, func(_ context.Context, run *searchRun, rec Recorder) {
			if len(run.Response.Offers) == 0 {
				rec.Missing(field(Root, "offers"), "search response has no offers")
			}
		}),
		Check(RuleOfferIDsUnique, func(_ context.Context, run *searchRun, rec Recorder) {
			CheckUniqueOfferIDs(rec, field(Root, "offers"), run.Response.Offers)
		}),
		Check(RuleOffersSorted, func(_ context.Context, run *searchRun, rec Recorder) {
			CheckSortedByTotal(rec, field(Root, "offers"), run.Response.Offers)
		}),
		Check(RuleOffersDistinct, func(_ context.Context, run *searchRun, rec Recorder) {
			CheckDistinctOffers(rec, field(Root, "offers"), run.Response.Offers)
		}),
		Check(RuleJourneyStops, func(_ context.Context, run *searchRun, rec Recorder) {
			CheckStops(rec, &run.Response.Catalog)
		}),
		Check(RuleJourneySegments, func(_ context.Context, run *searchRun, rec Recorder) {
			CheckJourneySegments(rec, &run.Response.Catalog)
		}),
		Check(RuleReferences, func(_ context.Context, run *searchRun, rec Recorder) {
			run.eachOffer(func(p string, offer *Offer) {
				CheckOfferReferences(rec, p, offer, &run.Response.Catalog)
			})
		}),
		Check(RuleFareArithmetic, func(_ context.Context, run *searchRun, rec Recorder) {
			counts := run.Payload.Counts()
			run.eachOffer(func(p string, offer *Offer) {
				CheckFareArithmetic(rec, p, offer.PassengerFareBreakdown, offer.PriceDetails, counts, true)
			})
		}),
		Check(RuleCurrency, func(_ context.Context, run *searchRun, rec Recorder) {
			if run.cfg.Currency == "" {
				CheckCurrencies(rec, Root, CurrencyScope{}, run.cfg)
				return
			}
			run.eachOffer(func(p string, offer *Offer) {
				CheckCurrencies(rec, p, CurrencyScope{Breakdown: offer.PassengerFareBreakdown, PriceDetails: offer.PriceDetails}, run.cfg)
			})
		}),
		Check(RulePassengerTypes, func(_ context.Context, run *searchRun, rec Recorder) {
			run.eachOffer(func(p string, offer *Offer) {
				CheckUniquePassengerTypes(rec, field(p, "passengerFareBreakdown"), offer.PassengerFareBreakdown)
			})
		}),
		NewPrerequisite("payload-lists-passengers",
			func(_ context.Context, run *searchRun) (bool, string) {
				return len(run.Payload.Counts()) > 0, "search payload lists no passengers"
			},
			Check(RulePayloadPassengers, func(_ context.Context, run *searchRun, rec Recorder) {
				run.eachOffer(func(p string, offer *Offer) {
					CheckPassengersMatchPayload(rec, field(p, "passengerFareBreakdown"), offer.PassengerFareBreakdown, run.Payload)
				})
			}),
		),
		Check(RuleTaxCodes, func(_ context.Context, run *searchRun, rec Recorder) {
			run.eachOffer(func(p string, offer *Offer) {
				checkOfferTaxCodes(rec, p, offer.PassengerFareBreakdown, offer.PriceDetails)
			})
		}),
		Check(RuleRBD, func(_ context.Context, run *searchRun, rec Recorder) {
			run.eachOffer(func(p string, offer *Offer) {
				CheckRBD(rec, field(p, "passengerFareBreakdown"), offer.PassengerFareBreakdown)
			})
		}),
		NewPrerequisite("searched-legs-coverage", hasLegs[*searchRun],
			Check(RuleSegmentCoverage, func(_ context.Context, run *searchRun, rec Recorder) {
				run.eachOffer(func(p string, offer *Offer) {
					CheckSegmentCoverage(rec, field(p, "passengerFareBreakdown"), offer.PassengerFareBreakdown, run.legs())
				})
			}),
		),
		NewPrerequisite("searched-legs-journeys", hasLegs[*searchRun],
			Check(RuleJourneyCount, func(_ context.Context, run *searchRun, rec Recorder) {
				run.eachOffer(func(p string, offer *Offer) {
					CheckJourneyCount(rec, p, offer, run.legs())
				})
			}),
		),
		Check(RuleSegmentTiming, func(_ context.Context, run *searchRun, rec Recorder) {
			run.eachOffer(func(p string, offer *Offer) {
				CheckSegmentTiming(rec, p, offer, &run.Response.Catalog)
			})
		}),
		Check(RuleJourneyChaining, func(_ context.Context, run *searchRun, rec Recorder) {
			run.eachOffer(func(p string, offer *Offer) {
				CheckJourneyChaining(rec, p, offer, &run.Response.Catalog, run.legs())
			})
		}),
		NewPrerequisite("agency-configured",
			func(_ context.Context, run *searchRun) (bool, string) {
				return run.cfg.Agency != "", "expected agency is not configured"
			},
			Check(RuleOfferIDEncoding, func(_ context.Context, run *searchRun, rec Recorder) {
				run.eachOffer(func(p string, offer *Offer) {
					CheckOfferIDEncoding(rec, p, offer, run.cfg.Agency)
				})
			}),
		),
		Check(RuleCompleteness, func(_ context.Context, run *searchRun, rec Recorder) {
			CheckCompleteness(rec, run.Response.Raw, run.cfg.WarningSuffixes)
		}),
	)
}

// checkOfferTaxCodes verifies tax-code uniqueness in every passenger's list
// and in the price details list.
func checkOfferTaxCodes(rec Recorder, path string, breakdown []PassengerFare, pd *PriceDetails) {
	bdPath := field(path, "passengerFareBreakdown")
	for i := range breakdown {
		CheckUniqueTaxCodes(rec, field(index(bdPath, i), "taxesAndFees"), breakdown[i].TaxesAndFees)
	}
	if pd != nil {
		CheckUniqueTaxCodes(rec, field(field(path, "priceDetails"), "taxesAndFees"), pd.TaxesAndFees)
	}
}
