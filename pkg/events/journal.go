package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

var (
	ErrEventNotFound = errors.New("events: event not found")
	ErrChainBroken   = errors.New("events: hash chain is broken")
)

// Handler is called with each event after it is appended.
type Handler func(Event)

// Journal is an in-memory append-only event log with hash chaining.
// Hashes are computed over RFC 8785 canonical JSON, so two journals
// holding the same events agree on every hash.
type Journal struct {
	mu        sync.RWMutex
	events    []Event
	chainHead string
	handlers  []Handler
}

// NewJournal returns an empty journal with chain head "genesis".
func NewJournal() *Journal {
	return &Journal{chainHead: "genesis"}
}

// Append records an event at the given operation time and notifies
// handlers. The caller supplies the timestamp so journal entries carry
// the same clock the operation was evaluated against.
func (j *Journal) Append(kind Kind, campaignID uint64, at time.Time, payload any) (Event, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}

	j.mu.Lock()
	e := Event{
		ID:          uuid.New().String(),
		Sequence:    uint64(len(j.events)) + 1,
		Kind:        kind,
		CampaignID:  campaignID,
		Timestamp:   at.UTC(),
		Payload:     canonical,
		PayloadHash: hashBytes(canonical),
		PrevHash:    j.chainHead,
	}
	hash, err := eventHash(e)
	if err != nil {
		j.mu.Unlock()
		return Event{}, fmt.Errorf("events: hash entry: %w", err)
	}
	e.Hash = hash
	j.chainHead = hash
	j.events = append(j.events, e)
	handlers := j.handlers
	j.mu.Unlock()

	// Handlers run outside the lock so they may read the journal.
	for _, h := range handlers {
		h(e)
	}
	return e, nil
}

// AddHandler registers a handler for future appends.
func (j *Journal) AddHandler(h Handler) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.handlers = append(j.handlers, h)
}

// Get returns the event with the given sequence number.
func (j *Journal) Get(seq uint64) (Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq == 0 || seq > uint64(len(j.events)) {
		return Event{}, ErrEventNotFound
	}
	return j.events[seq-1], nil
}

// Head returns the current chain head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.chainHead
}

// Len returns the number of events appended so far.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

// Filter selects events for Query. Zero fields match everything.
type Filter struct {
	Kind       Kind
	CampaignID uint64
	Since      *time.Time
	Until      *time.Time
	FromSeq    uint64
	ToSeq      uint64
	Limit      int
}

func (f Filter) matches(e Event) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.CampaignID != 0 && e.CampaignID != f.CampaignID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.FromSeq > 0 && e.Sequence < f.FromSeq {
		return false
	}
	if f.ToSeq > 0 && e.Sequence > f.ToSeq {
		return false
	}
	return true
}

// Query returns events matching the filter in append order.
func (j *Journal) Query(f Filter) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	results := make([]Event, 0)
	for _, e := range j.events {
		if f.matches(e) {
			results = append(results, e)
			if f.Limit > 0 && len(results) >= f.Limit {
				break
			}
		}
	}
	return results
}

// VerifyChain recomputes every hash and checks the chain linkage.
func (j *Journal) VerifyChain() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return verifyEvents(j.events)
}

// verifyEvents checks linkage and hashes of a contiguous event slice
// that starts at the chain genesis.
func verifyEvents(events []Event) error {
	expectedPrev := "genesis"
	for i, e := range events {
		if e.PrevHash != expectedPrev {
			return fmt.Errorf("%w: entry %d has prev_hash %s, expected %s",
				ErrChainBroken, i, e.PrevHash, expectedPrev)
		}
		if got := hashBytes(e.Payload); got != e.PayloadHash {
			return fmt.Errorf("%w: entry %d payload hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, got, e.PayloadHash)
		}
		computed, err := eventHash(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d hash computation failed: %v",
				ErrChainBroken, i, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, computed, e.Hash)
		}
		expectedPrev = e.Hash
	}
	return nil
}

// canonicalJSON marshals v and reduces it to RFC 8785 canonical form.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// eventHash hashes the chained fields of an event. The payload enters
// through PayloadHash, the predecessor through PrevHash.
func eventHash(e Event) (string, error) {
	hashable := struct {
		Sequence    uint64    `json:"sequence"`
		Kind        Kind      `json:"kind"`
		CampaignID  uint64    `json:"campaign_id"`
		Timestamp   time.Time `json:"timestamp"`
		PayloadHash string    `json:"payload_hash"`
		PrevHash    string    `json:"prev_hash"`
	}{
		Sequence:    e.Sequence,
		Kind:        e.Kind,
		CampaignID:  e.CampaignID,
		Timestamp:   e.Timestamp,
		PayloadHash: e.PayloadHash,
		PrevHash:    e.PrevHash,
	}
	canonical, err := canonicalJSON(hashable)
	if err != nil {
		return "", err
	}
	return hashBytes(canonical), nil
}
