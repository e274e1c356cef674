package farez

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestEncodeDecode(t *testing.T) {
	snap := Snapshot{OfferID: "O1", Body: []byte(`{"a":1}`), Status: 200, Captured: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := Decode[Snapshot](data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OfferID != snap.OfferID || string(got.Body) != string(snap.Body) || !got.Captured.Equal(snap.Captured) {
		t.Errorf("expected %+v, got %+v", snap, got)
	}
	if _, err := Decode[Snapshot]([]byte{0xc1}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestStore(t *testing.T) {
	t.Run("Put Get Delete", func(t *testing.T) {
		store := NewStore[BookingContext](0)
		want := BookingContext{NDCBookingReference: "N", AirlinePNR: "A"}
		if err := store.Put("TC-1", want); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := store.Get("TC-1")
		if err != nil || got != want {
			t.Errorf("expected %+v, got %+v (%v)", want, got, err)
		}
		store.Delete("TC-1")
		if _, err := store.Get("TC-1"); !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("expected ErrSnapshotNotFound, got %v", err)
		}
		store.Delete("absent")
	})

	t.Run("Stored Copy Is Isolated", func(t *testing.T) {
		store := NewStore[Snapshot](0)
		body := []byte("original")
		if err := store.Put("O1", Snapshot{Body: body}); err != nil {
			t.Fatal(err)
		}
		body[0] = 'X'
		got, _ := store.Get("O1")
		if string(got.Body) != "original" {
			t.Errorf("stored snapshot changed through caller's slice: %q", got.Body)
		}
	})

	t.Run("TTL Expiry", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		store := NewStore[Snapshot](time.Hour).WithClock(clock)
		if err := store.Put("O1", Snapshot{OfferID: "O1"}); err != nil {
			t.Fatal(err)
		}

		clock.Advance(59 * time.Minute)
		if _, err := store.Get("O1"); err != nil {
			t.Errorf("entry should still be live: %v", err)
		}

		clock.Advance(2 * time.Minute)
		if _, err := store.Get("O1"); !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("expected expired entry, got %v", err)
		}
		if store.Len() != 1 {
			t.Errorf("expired entries still count, got %d", store.Len())
		}
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		store := NewStore[Snapshot](0)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := string(rune('a' + i))
				_ = store.Put(key, Snapshot{OfferID: key})
				_, _ = store.Get(key)
			}(i)
		}
		wg.Wait()
		if store.Len() != 20 {
			t.Errorf("expected 20 entries, got %d", store.Len())
		}
	})
}
