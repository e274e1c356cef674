package farez

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TransactionState is how far a booking transaction has been validated.
type TransactionState int

// Transaction states, in order.
const (
	StateNew TransactionState = iota
	StateSearchValidated
	StateFareConfirmValidated
	StateBookValidated
	StateRetrieveValidated
)

func (s TransactionState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSearchValidated:
		return "SEARCH_VALIDATED"
	case StateFareConfirmValidated:
		return "FARECONFIRM_VALIDATED"
	case StateBookValidated:
		return "BOOK_VALIDATED"
	case StateRetrieveValidated:
		return "RETRIEVE_VALIDATED"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transaction drives one booking through Search, FareConfirm, Book and
// Retrieve, carrying what each step needs from the ones before it.
//
// A step advances the state once its suite has run, whatever it found. A
// step whose response was gated out by status or body, or that was skipped
// as a whole, leaves the state where it was. Calling a step out of order
// returns ErrStageOrder.
//
// The FareConfirm body is saved to the snapshot store under the selected
// offer id, and the booking context to the context store under the test
// case id, so other collaborators running in parallel can load them.
type Transaction struct {
	engine      *Engine
	snapshots   *SnapshotStore
	contexts    *ContextStore
	payload     *SearchPayload
	searchOffer *Offer
	book        *BookingResponse
	testCase    string
	offerID     string
	state       TransactionState
	mu          sync.Mutex
}

// NewTransaction starts a transaction for one test case. Nil stores get a
// private store each.
func (e *Engine) NewTransaction(testCase string, snapshots *SnapshotStore, contexts *ContextStore) *Transaction {
	if snapshots == nil {
		snapshots = NewStore[Snapshot](0).WithClock(e.clock)
	}
	if contexts == nil {
		contexts = NewStore[BookingContext](0).WithClock(e.clock)
	}
	return &Transaction{
		engine:    e,
		snapshots: snapshots,
		contexts:  contexts,
		testCase:  testCase,
	}
}

// State returns the current state.
func (t *Transaction) State() TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SelectedOffer returns the Search offer chosen for booking, or nil.
func (t *Transaction) SelectedOffer() *Offer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searchOffer
}

func (t *Transaction) require(step StageName, want TransactionState) error {
	if t.state != want {
		return fmt.Errorf("%w: %s requires %s, transaction is %s", ErrStageOrder, step, want, t.state)
	}
	return nil
}

// parseBody decodes a response body. An empty body yields a nil response so
// the engine reports it as missing.
func parseBody[R any](body []byte, parse func([]byte) (*R, error)) (*R, error) {
	resp, err := parse(body)
	if errors.Is(err, ErrNilResponse) {
		return nil, nil
	}
	return resp, err
}

// advanced reports whether a report's suite actually ran.
func advanced(r *Report) bool {
	if r.Skipped() {
		return false
	}
	return len(r.ByCheck(RuleResponseStatus)) == 0 && len(r.ByCheck(RuleResponseBody)) == 0
}

// Search validates the Search response and selects the offer to book:
// the one with offerID, or the first offer when offerID is empty.
func (t *Transaction) Search(ctx context.Context, status int, body []byte, payload *SearchPayload, offerID string) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require(StageSearch, StateNew); err != nil {
		return nil, err
	}
	resp, err := parseBody(body, ParseSearchResponse)
	if err != nil {
		return nil, err
	}
	report, err := t.engine.ValidateSearchOffer(ctx, SearchInput{Status: status, Response: resp, Payload: payload})
	if err != nil {
		return nil, err
	}
	if !advanced(report) {
		return report, nil
	}

	t.payload = payload
	for i := range resp.Offers {
		if offerID == "" || resp.Offers[i].OfferID == offerID {
			offer := resp.Offers[i]
			t.searchOffer = &offer
			t.offerID = offer.OfferID
			break
		}
	}
	t.state = StateSearchValidated
	return report, nil
}

// FareConfirm validates the FareConfirm response against the selected offer
// and saves it as the snapshot for Book.
func (t *Transaction) FareConfirm(ctx context.Context, status int, body []byte) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require(StageFareConfirm, StateSearchValidated); err != nil {
		return nil, err
	}
	resp, err := parseBody(body, ParseFareConfirmResponse)
	if err != nil {
		return nil, err
	}
	report, err := t.engine.ValidateFareConfirm(ctx, FareConfirmInput{
		Status:      status,
		Response:    resp,
		SearchOffer: t.searchOffer,
		Payload:     t.payload,
	})
	if err != nil {
		return nil, err
	}
	if !advanced(report) {
		return report, nil
	}

	if err := t.snapshots.Put(t.offerID, Snapshot{
		OfferID:  t.offerID,
		Status:   status,
		Body:     body,
		Captured: t.engine.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("save fare confirm snapshot: %w", err)
	}
	t.state = StateFareConfirmValidated
	return report, nil
}

// Book validates the Book response against the saved FareConfirm snapshot,
// the selected offer and the AddPax request, then saves the booking context.
func (t *Transaction) Book(ctx context.Context, status int, body []byte, addPax *AddPaxPayload) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require(StageBook, StateFareConfirmValidated); err != nil {
		return nil, err
	}
	snapshot, err := t.loadFareConfirm()
	if err != nil {
		return nil, err
	}
	resp, err := parseBody(body, ParseBookingResponse)
	if err != nil {
		return nil, err
	}
	report, err := t.engine.ValidateBooking(ctx, BookInput{
		Status:      status,
		Response:    resp,
		FareConfirm: snapshot,
		SearchOffer: t.searchOffer,
		Payload:     t.payload,
		AddPax:      addPax,
	})
	if err != nil {
		return nil, err
	}
	if !advanced(report) {
		return report, nil
	}

	if err := t.contexts.Put(t.testCase, resp.Context()); err != nil {
		return nil, fmt.Errorf("save booking context: %w", err)
	}
	t.book = resp
	t.state = StateBookValidated
	return report, nil
}

// loadFareConfirm reads the snapshot saved for the selected offer. A missing
// snapshot yields nil so Book reports the comparison as skipped.
func (t *Transaction) loadFareConfirm() (*FareConfirmResponse, error) {
	snap, err := t.snapshots.Get(t.offerID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fare confirm snapshot: %w", err)
	}
	return parseBody(snap.Body, ParseFareConfirmResponse)
}

// Retrieve validates the Retrieve response against the Book response and
// the saved booking context.
func (t *Transaction) Retrieve(ctx context.Context, status int, body []byte) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require(StageRetrieve, StateBookValidated); err != nil {
		return nil, err
	}
	var saved *BookingContext
	bc, err := t.contexts.Get(t.testCase)
	switch {
	case err == nil:
		saved = &bc
	case !errors.Is(err, ErrSnapshotNotFound):
		return nil, fmt.Errorf("load booking context: %w", err)
	}
	resp, err := parseBody(body, ParseBookingResponse)
	if err != nil {
		return nil, err
	}
	report, err := t.engine.ValidateRetrieve(ctx, RetrieveInput{
		Status:   status,
		Book:     t.book,
		Response: resp,
		Saved:    saved,
	})
	if err != nil {
		return nil, err
	}
	if advanced(report) {
		t.state = StateRetrieveValidated
	}
	return report, nil
}
