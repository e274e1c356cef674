package farez

import (
	"fmt"
	"slices"
	"time"
)

// Local date-time layouts accepted for segment times. Offsets are accepted
// too, for suppliers that send them.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.RFC3339Nano,
}

// ParseLocalDateTime parses an ISO local date-time such as
// 2025-03-01T08:30:00.
func ParseLocalDateTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// timedSegment is a segment with parsed times.
type timedSegment struct {
	Segment
	ID        string
	Departure time.Time
	Arrival   time.Time
}

// resolveSegment looks up and parses one segment. It reports false after
// recording a malformed time; unknown ids yield ok with found false.
func resolveSegment(rec Recorder, cat *Catalog, id string) (seg timedSegment, found, ok bool) {
	s, exists := cat.Segments[id]
	if !exists {
		return seg, false, true
	}
	p := field(field(Root, "segments"), id)
	dep, err := ParseLocalDateTime(s.DepartureDateTime)
	if err != nil {
		rec.Malformed(field(p, "departureDateTime"), s.DepartureDateTime, err)
		return seg, true, false
	}
	arr, err := ParseLocalDateTime(s.ArrivalDateTime)
	if err != nil {
		rec.Malformed(field(p, "arrivalDateTime"), s.ArrivalDateTime, err)
		return seg, true, false
	}
	return timedSegment{Segment: s, ID: id, Departure: dep, Arrival: arr}, true, true
}

// CheckSegmentTiming walks the first passenger's segment chain of an offer
// in listed order. Every segment must arrive after it departs and before the
// next segment departs. Failures name the segment detail under path that
// references the segment. A malformed time abandons the check.
func CheckSegmentTiming(rec Recorder, path string, offer *Offer, cat *Catalog) {
	if len(offer.PassengerFareBreakdown) == 0 {
		return
	}
	detailsPath := field(index(field(path, "passengerFareBreakdown"), 0), "segmentDetails")
	var chain []timedSegment
	var refPaths []string
	for j, ref := range offer.PassengerFareBreakdown[0].SegmentDetails {
		seg, found, ok := resolveSegment(rec, cat, ref.SegmentRefID)
		if !ok {
			return
		}
		if found {
			chain = append(chain, seg)
			refPaths = append(refPaths, index(detailsPath, j))
		}
	}

	for i, seg := range chain {
		p := refPaths[i]
		if !seg.Arrival.After(seg.Departure) {
			rec.Mismatch(p,
				fmt.Sprintf("offer %s segment %s arrives before it departs", offer.OfferID, seg.ID),
				"> "+seg.DepartureDateTime, seg.ArrivalDateTime)
		}
		if i+1 < len(chain) {
			next := chain[i+1]
			if seg.Arrival.After(next.Departure) {
				rec.Mismatch(p,
					fmt.Sprintf("offer %s segment %s overlaps next segment %s", offer.OfferID, seg.ID, next.ID),
					"<= "+next.DepartureDateTime, seg.ArrivalDateTime)
			}
		}
	}
}

// CheckJourneyChaining validates each journey of an offer: segments sorted
// by departure must chain airport to airport without overlapping, a
// non-stop journey must have exactly one segment, and the journey's
// endpoints must match one of the searched legs.
func CheckJourneyChaining(rec Recorder, path string, offer *Offer, cat *Catalog, legs []Leg) {
	for j, id := range offer.Journeys {
		journey, exists := cat.Journeys[id]
		if !exists {
			continue
		}
		jPath := field(field(Root, "journeys"), id)
		if len(journey.SegmentReferenceIDs) == 0 {
			rec.Missing(field(jPath, "segmentReferenceIds"), "journey %s of offer %s has no segmentReferenceIds", id, offer.OfferID)
			continue
		}

		segs := make([]timedSegment, 0, len(journey.SegmentReferenceIDs))
		for _, segID := range journey.SegmentReferenceIDs {
			seg, found, ok := resolveSegment(rec, cat, segID)
			if !ok {
				return
			}
			if found {
				segs = append(segs, seg)
			}
		}
		if len(segs) == 0 {
			continue
		}
		slices.SortStableFunc(segs, func(a, b timedSegment) int {
			return a.Departure.Compare(b.Departure)
		})

		if journey.NumberOfStops.Present && journey.NumberOfStops.Value == 0 && len(segs) != 1 {
			rec.Mismatch(field(jPath, "segmentReferenceIds"), "non-stop journey "+id+" must have exactly one segment", 1, len(segs))
		}

		first, last := segs[0], segs[len(segs)-1]
		if len(legs) > 0 && !matchesLeg(first.Origin, last.Destination, legs) {
			rec.Fail(index(field(path, "offerJourneys"), j),
				"journey %s runs %s-%s which matches no searched leg", id, first.Origin, last.Destination)
		}

		for i := 0; i+1 < len(segs); i++ {
			cur, next := segs[i], segs[i+1]
			if cur.Destination != next.Origin {
				rec.Mismatch(field(field(field(Root, "segments"), next.ID), "origin"),
					fmt.Sprintf("journey %s breaks the chain after segment %s", id, cur.ID),
					cur.Destination, next.Origin)
			}
			if cur.Arrival.After(next.Departure) {
				rec.Mismatch(field(field(field(Root, "segments"), cur.ID), "arrivalDateTime"),
					fmt.Sprintf("journey %s segment %s overlaps segment %s", id, cur.ID, next.ID),
					"<= "+next.DepartureDateTime, cur.ArrivalDateTime)
			}
		}
	}
}

func matchesLeg(origin, destination string, legs []Leg) bool {
	for _, leg := range legs {
		if leg.Origin == origin && leg.Destination == destination {
			return true
		}
	}
	return false
}
