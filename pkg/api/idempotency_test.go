package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStoreRoundTrip(t *testing.T) {
	store := NewIdempotencyStore(time.Hour)

	_, ok := store.Lookup("missing")
	assert.False(t, ok)

	store.Save("k1", Reply{StatusCode: 201, ContentType: "application/json", Body: []byte(`{"id":1}`)})
	reply, ok := store.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, 201, reply.StatusCode)
	assert.Equal(t, `{"id":1}`, string(reply.Body))
	assert.False(t, reply.SavedAt.IsZero())
}

func TestMemoryIdempotencyStoreExpires(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	store.Save("k1", Reply{StatusCode: 200})

	// Age the entry past the TTL.
	store.mu.Lock()
	aged := store.entries["k1"]
	aged.SavedAt = time.Now().Add(-2 * time.Minute)
	store.entries["k1"] = aged
	store.mu.Unlock()

	_, ok := store.Lookup("k1")
	assert.False(t, ok)
}

func TestMemoryIdempotencyStoreSweepsOnSave(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	store.Save("stale", Reply{StatusCode: 200})

	store.mu.Lock()
	aged := store.entries["stale"]
	aged.SavedAt = time.Now().Add(-2 * time.Minute)
	store.entries["stale"] = aged
	store.lastSweep = time.Now().Add(-2 * time.Minute)
	store.mu.Unlock()

	store.Save("fresh", Reply{StatusCode: 200})

	store.mu.RLock()
	defer store.mu.RUnlock()
	assert.NotContains(t, store.entries, "stale")
	assert.Contains(t, store.entries, "fresh")
}

func TestIdempotencyMiddlewareReplays(t *testing.T) {
	calls := 0
	handler := IdempotencyMiddleware(NewIdempotencyStore(time.Hour))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"call":%d}`, calls)
		}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/campaigns", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replay"))

	second := do()
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddlewareIgnoresReadsAndMissingKeys(t *testing.T) {
	calls := 0
	handler := IdempotencyMiddleware(NewIdempotencyStore(time.Hour))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}))

	// GET with a key: pass-through.
	req := httptest.NewRequest(http.MethodGet, "/v1/campaigns/1", nil)
	req.Header.Set("Idempotency-Key", "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// POST without a key: pass-through.
	post := httptest.NewRequest(http.MethodPost, "/v1/campaigns", nil)
	handler.ServeHTTP(httptest.NewRecorder(), post)
	handler.ServeHTTP(httptest.NewRecorder(), post)

	assert.Equal(t, 4, calls)
}

func TestIdempotencyMiddlewareRetriesFailures(t *testing.T) {
	calls := 0
	handler := IdempotencyMiddleware(NewIdempotencyStore(time.Hour))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				WriteProblem(w, http.StatusConflict, "Conflict", "not yet")
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/1/donations", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusConflict, do().Code)
	// The failure was not stored; the retry runs the handler again.
	assert.Equal(t, http.StatusOK, do().Code)
	// Now the success replays.
	rec := do()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replay"))
	assert.Equal(t, 2, calls)
}

func TestIdempotentDonationDoesNotDoubleCharge(t *testing.T) {
	f := newServerFixture(t)
	f.createCampaign(10_000)

	do := func() *httptest.ResponseRecorder {
		body, err := json.Marshal(DonationRequest{Amount: 250})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/1/donations", strings.NewReader(string(body)))
		req.Header.Set("Authorization", "Bearer "+f.token("bob"))
		req.Header.Set("Idempotency-Key", "donation-7f3a")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := do()
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	// One pull, one ledger movement.
	assert.EqualValues(t, 250, f.gateway.Pulled("bob"))
	assert.Len(t, f.gateway.Batches(), 1)
}
