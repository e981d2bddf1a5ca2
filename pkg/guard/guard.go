// Package guard throttles custody traffic per principal so one noisy
// donor cannot starve the rest.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrThrottled is returned when a principal exceeds its allowance.
var ErrThrottled = errors.New("guard: rate limit exceeded")

// Limits is a principal's steady rate and burst allowance.
type Limits struct {
	PerSecond float64
	Burst     int
}

// Guard decides whether a principal may run another operation.
type Guard interface {
	Allow(ctx context.Context, principal string) error
}

const (
	sweepEvery = time.Minute
	idleAfter  = 3 * time.Minute
)

type actor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryGuard keeps a token bucket per principal. Idle entries are
// swept during Allow, so no background goroutine is needed.
type MemoryGuard struct {
	mu        sync.Mutex
	limits    Limits
	actors    map[string]*actor
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryGuard builds a single-process guard.
func NewMemoryGuard(limits Limits) *MemoryGuard {
	return &MemoryGuard{
		limits: limits,
		actors: make(map[string]*actor),
		now:    time.Now,
	}
}

func (g *MemoryGuard) Allow(_ context.Context, principal string) error {
	g.mu.Lock()
	now := g.now()
	if now.Sub(g.lastSweep) >= sweepEvery {
		for id, a := range g.actors {
			if now.Sub(a.lastSeen) > idleAfter {
				delete(g.actors, id)
			}
		}
		g.lastSweep = now
	}
	a, ok := g.actors[principal]
	if !ok {
		a = &actor{limiter: rate.NewLimiter(rate.Limit(g.limits.PerSecond), g.limits.Burst)}
		g.actors[principal] = a
	}
	a.lastSeen = now
	g.mu.Unlock()

	if !a.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrThrottled, principal)
	}
	return nil
}

// Size returns the number of tracked principals.
func (g *MemoryGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.actors)
}
