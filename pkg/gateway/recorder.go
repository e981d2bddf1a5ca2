package gateway

import (
	"context"
	"sync"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// Recorder is an in-process Gateway for tests and the demo. It records
// every executed batch and can be scripted to refuse.
type Recorder struct {
	mu      sync.Mutex
	batches []Batch
	nextErr error
	refuse  func(Batch) error
}

// NewRecorder returns a Recorder that accepts everything.
func NewRecorder() *Recorder { return &Recorder{} }

// RefuseNext makes the next Execute call fail with err, once.
func (r *Recorder) RefuseNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextErr = err
}

// RefuseWhen installs a predicate consulted on every Execute; a
// non-nil return refuses the batch.
func (r *Recorder) RefuseWhen(fn func(Batch) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refuse = fn
}

// Execute implements Gateway. Refused batches are not recorded,
// matching the all-or-nothing contract. The refuse predicate runs
// outside the lock so it may call back into the Recorder.
func (r *Recorder) Execute(_ context.Context, batch Batch) error {
	r.mu.Lock()
	if r.nextErr != nil {
		err := r.nextErr
		r.nextErr = nil
		r.mu.Unlock()
		return err
	}
	refuse := r.refuse
	r.mu.Unlock()

	if refuse != nil {
		if err := refuse(batch); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()
	return nil
}

// Batches returns a copy of everything executed so far.
func (r *Recorder) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

// Pushed sums all amounts pushed to a party across executed batches.
func (r *Recorder) Pushed(party campaign.Principal) int64 {
	return r.total(KindPush, party)
}

// Pulled sums all amounts pulled from a party across executed batches.
func (r *Recorder) Pulled(party campaign.Principal) int64 {
	return r.total(KindPull, party)
}

func (r *Recorder) total(kind Kind, party campaign.Principal) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, b := range r.batches {
		for _, in := range b.Instructions {
			if in.Kind == kind && in.Party == party {
				sum += in.Amount
			}
		}
	}
	return sum
}
