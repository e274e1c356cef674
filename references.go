package farez

// CheckBreakdownReferences verifies that every segment, price class and
// baggage reference inside a passenger fare breakdown is a key of the
// catalog. The three references of a segment entry are checked
// independently so partial failures are all reported. A missing breakdown
// or segment list is itself a failure.
func CheckBreakdownReferences(rec Recorder, path string, breakdown []PassengerFare, cat *Catalog) {
	if breakdown == nil {
		rec.Missing(path, "passengerFareBreakdown is missing")
		return
	}
	for i := range breakdown {
		paxPath := index(path, i)
		pax := &breakdown[i]
		if pax.SegmentDetails == nil {
			rec.Missing(field(paxPath, "segmentDetails"), "segmentDetails missing for passenger type %s", pax.PassengerTypeCode)
			continue
		}
		for j, ref := range pax.SegmentDetails {
			refPath := index(field(paxPath, "segmentDetails"), j)

			switch {
			case ref.SegmentRefID == "":
				rec.Missing(field(refPath, "segmentRefId"), "segmentRefId missing for passenger type %s", pax.PassengerTypeCode)
			case !hasKey(cat.Segments, ref.SegmentRefID):
				rec.Fail(field(refPath, "segmentRefId"), "segmentRefId %q for passenger type %s not found in segments", ref.SegmentRefID, pax.PassengerTypeCode)
			}

			if ref.PriceClassRefID != "" && !hasKey(cat.PriceClasses, ref.PriceClassRefID) {
				rec.Fail(field(refPath, "priceClassRefId"), "priceClassRefId %q for passenger type %s not found in priceClasses", ref.PriceClassRefID, pax.PassengerTypeCode)
			}

			if ref.BaggageDetailsRefID != "" && !hasKey(cat.BaggageDetails, ref.BaggageDetailsRefID) {
				rec.Fail(field(refPath, "baggageDetailsRefId"), "baggageDetailsRefId %q for passenger type %s not found in baggageDetails", ref.BaggageDetailsRefID, pax.PassengerTypeCode)
			}
		}
	}
}

// CheckOfferReferences verifies the whole reference graph of one offer:
// its breakdown references and its journey list.
func CheckOfferReferences(rec Recorder, path string, offer *Offer, cat *Catalog) {
	CheckBreakdownReferences(rec, field(path, "passengerFareBreakdown"), offer.PassengerFareBreakdown, cat)

	if offer.Journeys == nil {
		rec.Missing(field(path, "offerJourneys"), "offer %s has no journey list", offer.OfferID)
		return
	}
	for i, id := range offer.Journeys {
		if !hasKey(cat.Journeys, id) {
			rec.Fail(index(field(path, "offerJourneys"), i), "journey %q of offer %s not found in journeys", id, offer.OfferID)
		}
	}
}

// CheckJourneySegments verifies that every journey's segment references are
// keys of the segments map.
func CheckJourneySegments(rec Recorder, cat *Catalog) {
	for _, id := range sortedKeys(cat.Journeys) {
		journey := cat.Journeys[id]
		jPath := field(field(Root, "journeys"), id)
		if journey.SegmentReferenceIDs == nil {
			rec.Missing(field(jPath, "segmentReferenceIds"), "segmentReferenceIds is null in journey %s", id)
			continue
		}
		for i, segID := range journey.SegmentReferenceIDs {
			if !hasKey(cat.Segments, segID) {
				rec.Fail(index(field(jPath, "segmentReferenceIds"), i), "segment %q of journey %s not found in segments", segID, id)
			}
		}
	}
}

func hasKey[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}
