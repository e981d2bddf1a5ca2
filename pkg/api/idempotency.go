package api

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// Reply is a captured response held for idempotent replay.
type Reply struct {
	StatusCode  int
	ContentType string
	Body        []byte
	SavedAt     time.Time
}

// IdempotencyStore persists replies keyed by the Idempotency-Key
// header. Save is best-effort; a lost reply only costs a re-execution.
type IdempotencyStore interface {
	Lookup(key string) (Reply, bool)
	Save(key string, reply Reply)
}

// MemoryIdempotencyStore keeps replies in-process. Expired entries are
// swept inline during Save, so the store needs no background work.
type MemoryIdempotencyStore struct {
	mu        sync.RWMutex
	entries   map[string]Reply
	ttl       time.Duration
	lastSweep time.Time
}

// NewIdempotencyStore returns an empty in-memory store.
func NewIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries:   make(map[string]Reply),
		ttl:       ttl,
		lastSweep: time.Now(),
	}
}

func (s *MemoryIdempotencyStore) Lookup(key string) (Reply, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reply, ok := s.entries[key]
	if !ok || time.Since(reply.SavedAt) > s.ttl {
		return Reply{}, false
	}
	return reply, true
}

func (s *MemoryIdempotencyStore) Save(key string, reply Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastSweep) > s.ttl {
		for k, v := range s.entries {
			if now.Sub(v.SavedAt) > s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	reply.SavedAt = now
	s.entries[key] = reply
}

// responseCapture tees the response for later replay.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key instead of re-running the operation. Only mutating
// methods participate, and only 2xx responses are stored; a failed
// call may be retried with the same key.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if reply, ok := store.Lookup(key); ok {
				if reply.ContentType != "" {
					w.Header().Set("Content-Type", reply.ContentType)
				}
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(reply.StatusCode)
				_, _ = w.Write(reply.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Save(key, Reply{
					StatusCode:  capture.statusCode,
					ContentType: w.Header().Get("Content-Type"),
					Body:        capture.body.Bytes(),
				})
			}
		})
	}
}
