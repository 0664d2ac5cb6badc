// Package mailbox is the store-and-forward fallback for signaling: clients
// without a live push channel poll for pending offer/answer/candidates.
package mailbox

import (
	"context"
	"encoding/json"
	"sync"
)

// Entry holds the pending signaling state for one ordered peer pair in a
// meeting: at most one offer and one answer, plus queued ICE candidates.
type Entry struct {
	Offer      json.RawMessage   `json:"offer,omitempty"`
	Answer     json.RawMessage   `json:"answer,omitempty"`
	Candidates []json.RawMessage `json:"candidates,omitempty"`
}

// Empty reports whether nothing is pending.
func (e Entry) Empty() bool {
	return len(e.Offer) == 0 && len(e.Answer) == 0 && len(e.Candidates) == 0
}

// Store keeps pending signaling keyed by (meeting, from, to). Offers and
// answers overwrite any prior value for the same ordered pair; candidates
// queue up. Consume returns everything pending and clears the entry, so
// delivery is single-consumer, at most once.
type Store interface {
	PutOffer(ctx context.Context, meetingID, from, to string, sdp json.RawMessage) error
	PutAnswer(ctx context.Context, meetingID, from, to string, sdp json.RawMessage) error
	AppendCandidate(ctx context.Context, meetingID, from, to string, candidate json.RawMessage) error
	Consume(ctx context.Context, meetingID, from, to string) (Entry, error)
}

type pairKey struct {
	meetingID, from, to string
}

// Memory is the in-process Store used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	entries map[pairKey]*Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[pairKey]*Entry)}
}

// PutOffer stores the offer, replacing any prior pending offer for the pair.
func (m *Memory) PutOffer(_ context.Context, meetingID, from, to string, sdp json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(pairKey{meetingID, from, to}).Offer = append(json.RawMessage(nil), sdp...)
	return nil
}

// PutAnswer stores the answer, replacing any prior pending answer for the pair.
func (m *Memory) PutAnswer(_ context.Context, meetingID, from, to string, sdp json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(pairKey{meetingID, from, to}).Answer = append(json.RawMessage(nil), sdp...)
	return nil
}

// AppendCandidate queues an ICE candidate behind any already pending.
func (m *Memory) AppendCandidate(_ context.Context, meetingID, from, to string, candidate json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(pairKey{meetingID, from, to})
	e.Candidates = append(e.Candidates, append(json.RawMessage(nil), candidate...))
	return nil
}

// Consume returns and deletes everything pending for the pair.
func (m *Memory) Consume(_ context.Context, meetingID, from, to string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{meetingID, from, to}
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, nil
	}
	delete(m.entries, key)
	return *e, nil
}

func (m *Memory) entry(key pairKey) *Entry {
	e, ok := m.entries[key]
	if !ok {
		e = &Entry{}
		m.entries[key] = e
	}
	return e
}
