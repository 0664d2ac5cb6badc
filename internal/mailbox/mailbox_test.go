package mailbox

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemory_OfferOverwrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.PutOffer(ctx, "room1", "U1", "U2", json.RawMessage(`{"sdp":"old"}`)); err != nil {
		t.Fatalf("put offer: %v", err)
	}
	if err := m.PutOffer(ctx, "room1", "U1", "U2", json.RawMessage(`{"sdp":"new"}`)); err != nil {
		t.Fatalf("put offer: %v", err)
	}

	entry, err := m.Consume(ctx, "room1", "U1", "U2")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if string(entry.Offer) != `{"sdp":"new"}` {
		t.Fatalf("offer not overwritten: %s", entry.Offer)
	}
}

func TestMemory_CandidatesQueueInOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, c := range []string{`{"c":1}`, `{"c":2}`, `{"c":3}`} {
		if err := m.AppendCandidate(ctx, "room1", "U1", "U2", json.RawMessage(c)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entry, _ := m.Consume(ctx, "room1", "U1", "U2")
	if len(entry.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(entry.Candidates))
	}
	if string(entry.Candidates[0]) != `{"c":1}` || string(entry.Candidates[2]) != `{"c":3}` {
		t.Fatalf("candidate order lost: %v", entry.Candidates)
	}
}

func TestMemory_ConsumeIsAtMostOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.PutAnswer(ctx, "room1", "U2", "U1", json.RawMessage(`{"sdp":"a"}`))

	first, _ := m.Consume(ctx, "room1", "U2", "U1")
	if first.Empty() {
		t.Fatalf("first consume returned nothing")
	}
	second, _ := m.Consume(ctx, "room1", "U2", "U1")
	if !second.Empty() {
		t.Fatalf("second consume returned data: %+v", second)
	}
}

func TestMemory_PairsAreIndependentAndOrdered(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.PutOffer(ctx, "room1", "U1", "U2", json.RawMessage(`{"sdp":"fwd"}`))
	_ = m.PutOffer(ctx, "room1", "U2", "U1", json.RawMessage(`{"sdp":"rev"}`))
	_ = m.PutOffer(ctx, "room2", "U1", "U2", json.RawMessage(`{"sdp":"other"}`))

	entry, _ := m.Consume(ctx, "room1", "U1", "U2")
	if string(entry.Offer) != `{"sdp":"fwd"}` {
		t.Fatalf("wrong entry: %s", entry.Offer)
	}
	rev, _ := m.Consume(ctx, "room1", "U2", "U1")
	if string(rev.Offer) != `{"sdp":"rev"}` {
		t.Fatalf("reverse pair clobbered: %s", rev.Offer)
	}
	other, _ := m.Consume(ctx, "room2", "U1", "U2")
	if string(other.Offer) != `{"sdp":"other"}` {
		t.Fatalf("meeting key ignored: %s", other.Offer)
	}
}
