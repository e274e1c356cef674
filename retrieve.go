package farez

import (
	"context"
	"strings"
)

// Rule names recorded by the Retrieve suite.
const (
	RuleBookingToken      = "booking-token"
	RuleBookSnapshotMatch = "book-snapshot-match"
	RuleIdentifiersMatch  = "identifiers-match"
	RuleJourneysMatch     = "journeys-match"
	RuleSegmentsMatch     = "segments-match"
	RulePassengersMatch   = "passengers-match"
	RuleBaggageMatch      = "baggage-details-match"
	RulePriceClassNames   = "price-class-names"
	RuleOrderMatch        = "order-match"
	RuleSavedContextMatch = "saved-context-match"
)

// RetrieveInput is everything needed to validate one Retrieve response
// against the Book response of the same booking. Saved, when set, is the
// booking context persisted after Book.
type RetrieveInput struct {
	Book     *BookingResponse
	Response *BookingResponse
	Saved    *BookingContext
	Status   int
}

type retrieveRun struct {
	RetrieveInput
	collector *Collector
	cfg       Config
	book      any // normalized Book tree
	retrieved any // normalized Retrieve tree
}

func (r *retrieveRun) Collector() *Collector { return r.collector }

// ValidateRetrieve validates a Retrieve response against the Book response
// of the same booking.
func (e *Engine) ValidateRetrieve(ctx context.Context, in RetrieveInput) (*Report, error) {
	run := &retrieveRun{RetrieveInput: in, cfg: e.cfg, collector: e.newCollector()}
	if in.Book != nil {
		run.book = Normalize(in.Book.Raw)
	}
	if in.Response != nil {
		run.retrieved = Normalize(in.Response.Raw)
	}
	return validate(ctx, e, e.retrieve, StageRetrieve, gate{status: in.Status, present: in.Response != nil}, run)
}

func newRetrieveStage() *Stage[*retrieveRun] {
	subtree := func(name Name, key string) Processor[*retrieveRun] {
		return Check(name, func(_ context.Context, run *retrieveRun, rec Recorder) {
			CompareSubtree(rec, key, run.book, run.retrieved)
		})
	}

	bookMatch := NewStage[*retrieveRun](RuleBookSnapshotMatch,
		Check(RuleIdentifiersMatch, func(_ context.Context, run *retrieveRun, rec Recorder) {
			CompareBookingContext(rec, run.Book.Context(), run.Response.Context())
		}),
		subtree(RuleJourneysMatch, "journeys"),
		subtree(RuleSegmentsMatch, "segments"),
		subtree(RulePassengersMatch, "passengers"),
		subtree(RuleBaggageMatch, "baggageDetails"),
		Check(RulePriceClassNames, func(_ context.Context, run *retrieveRun, rec Recorder) {
			ComparePriceClassNames(rec, run.Book.PriceClasses, run.Response.PriceClasses)
		}),
		Check(RuleOrderMatch, compareOrders),
	)

	return NewStage[*retrieveRun]("retrieve",
		Check(RuleBookingToken, func(_ context.Context, run *retrieveRun, rec Recorder) {
			if strings.TrimSpace(deref(run.Response.BookingToken)) == "" {
				rec.Missing(field(Root, "bookingToken"), "bookingToken is null or empty")
			}
		}),
		NewPrerequisite("book-snapshot-available",
			func(_ context.Context, run *retrieveRun) (bool, string) {
				return run.Book != nil, "no Book response to compare with"
			},
			bookMatch,
		),
		NewPrerequisite("saved-context-available",
			func(_ context.Context, run *retrieveRun) (bool, string) {
				return run.Saved != nil, "no saved booking context for this test case"
			},
			Check(RuleSavedContextMatch, func(_ context.Context, run *retrieveRun, rec Recorder) {
				CompareBookingContext(rec, *run.Saved, run.Response.Context())
			}),
		),
	)
}

// ComparePriceClassNames verifies every expected price class exists with the
// same name. A missing class is a failure.
func ComparePriceClassNames(rec Recorder, expected, actual map[string]PriceClass) {
	base := field(Root, "priceClasses")
	for _, id := range sortedKeys(expected) {
		got, ok := actual[id]
		if !ok {
			rec.Fail(field(base, id), "price class %s is missing", id)
			continue
		}
		CompareValue(rec, field(field(base, id), "priceClassName"), "priceClassName of "+id,
			expected[id].PriceClassName, got.PriceClassName)
	}
}

// priceTypedKeys are the priceDetails keys compared outside the key walk:
// the amounts as typed money and the tax list element by element.
var priceTypedKeys = []string{"totalAmount", "baseAmount", "taxesAmount", "discountAmount", "serviceChargeAmount", "taxesAndFees"}

// compareOrders compares the Book and Retrieve orders over the union of
// their keys. The fare breakdown is compared entry by entry and key by key,
// price details by every amount and the tax list, and every other order
// field as a whole subtree.
func compareOrders(_ context.Context, run *retrieveRun, rec Recorder) {
	want, got := asObject(lookup(run.book, "order")), asObject(lookup(run.retrieved, "order"))
	if want == nil || got == nil {
		if want != nil || got != nil {
			rec.Missing(orderPath, "order missing on one side")
		}
		return
	}

	CompareObjects(rec, orderPath, "order", want, got, "passengerFareBreakdown", "priceDetails")

	CompareEntriesByKey(rec, orderFarePath, "passengerFareBreakdown",
		asList(want["passengerFareBreakdown"]), asList(got["passengerFareBreakdown"]))

	pdPath := field(orderPath, "priceDetails")
	if run.Book.Order != nil && run.Response.Order != nil {
		ComparePriceAmounts(rec, pdPath, run.Book.Order.PriceDetails, run.Response.Order.PriceDetails)
	}
	CompareObjects(rec, pdPath, "order.priceDetails", asObject(want["priceDetails"]), asObject(got["priceDetails"]), priceTypedKeys...)
	CompareLists(rec, field(pdPath, "taxesAndFees"), "priceDetails.taxesAndFees",
		asList(lookup(want, "priceDetails", "taxesAndFees")), asList(lookup(got, "priceDetails", "taxesAndFees")))
}
