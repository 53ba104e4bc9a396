// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package trakt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/reelsync/reelsync/internal/config"
	"github.com/reelsync/reelsync/internal/models"
)

func writeTokenFile(t *testing.T, dir string, tok Token) string {
	t.Helper()
	path := filepath.Join(dir, "trakt_token.json")
	data, err := json.Marshal(tok)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// testClient builds a client against a fake server with a valid token,
// no client-side throttling, and recorded instead of real backoff
// waits.
func testClient(t *testing.T, serverURL string, attempts int) (*Client, *[]time.Duration) {
	t.Helper()
	tokenPath := writeTokenFile(t, t.TempDir(), Token{
		AccessToken:  "valid-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	})

	c := NewClient(
		config.TraktConfig{
			APIURL:       serverURL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "urn:ietf:wg:oauth:2.0:oob",
			TokenPath:    tokenPath,
		},
		config.SyncConfig{ChunkSize: 2, RetryAttempts: attempts, RetryDelay: time.Millisecond},
	)

	waits := &[]time.Duration{}
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	c.wait = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return c, waits
}

func respond(w http.ResponseWriter, status int, resp syncResponse) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func records(n int) []models.WatchRecord {
	out := make([]models.WatchRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.WatchRecord{
			Title:     fmt.Sprintf("Film %d", i+1),
			Year:      2000 + i,
			WatchedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		})
	}
	return out
}

func TestSubmitHistorySuccess(t *testing.T) {
	var gotPayload syncPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer valid-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if key := r.Header.Get("trakt-api-key"); key != "client-id" {
			t.Errorf("trakt-api-key = %q", key)
		}
		if v := r.Header.Get("trakt-api-version"); v != "2" {
			t.Errorf("trakt-api-version = %q", v)
		}
		if r.URL.Path != "/sync/history" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		respond(w, http.StatusCreated, syncResponse{
			Added:    countBucket{Movies: 1},
			Existing: countBucket{Movies: 1},
		})
	}))
	defer server.Close()

	c, _ := testClient(t, server.URL, 3)
	result, err := c.SubmitHistory(context.Background(), records(2))
	if err != nil {
		t.Fatalf("SubmitHistory() error = %v", err)
	}

	if result.Added != 1 || result.Existing != 1 {
		t.Errorf("result = %+v, want Added=1 Existing=1", result)
	}
	if len(gotPayload.Movies) != 2 {
		t.Fatalf("payload has %d movies, want 2", len(gotPayload.Movies))
	}
	if gotPayload.Movies[0].WatchedAt != "2024-01-01T12:00:00.000Z" {
		t.Errorf("watched_at = %q, want noon UTC stamp", gotPayload.Movies[0].WatchedAt)
	}
	if gotPayload.Movies[0].Rating != 0 || gotPayload.Movies[0].RatedAt != "" {
		t.Errorf("history payload must not carry rating fields: %+v", gotPayload.Movies[0])
	}
}

func TestSubmitRatingsPayload(t *testing.T) {
	var gotPayload syncPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/ratings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		respond(w, http.StatusCreated, syncResponse{Added: countBucket{Movies: 1}})
	}))
	defer server.Close()

	stars := 4.5
	batch := []models.WatchRecord{{
		Title:     "Arrival",
		Year:      2016,
		WatchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Rating:    &stars,
	}}

	c, _ := testClient(t, server.URL, 3)
	result, err := c.SubmitRatings(context.Background(), batch)
	if err != nil {
		t.Fatalf("SubmitRatings() error = %v", err)
	}
	if result.Added != 1 {
		t.Errorf("Added = %d, want 1", result.Added)
	}

	if len(gotPayload.Movies) != 1 {
		t.Fatalf("payload has %d movies, want 1", len(gotPayload.Movies))
	}
	m := gotPayload.Movies[0]
	if m.Rating != 9 {
		t.Errorf("rating = %d, want 9 (4.5 stars doubled)", m.Rating)
	}
	if m.Year != 2016 || m.Title != "Arrival" {
		t.Errorf("unexpected movie entry: %+v", m)
	}
	if m.RatedAt == "" || m.WatchedAt != "" {
		t.Errorf("ratings payload must carry rated_at, not watched_at: %+v", m)
	}
}

func TestSubmitChunking(t *testing.T) {
	var sizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p syncPayload
		json.NewDecoder(r.Body).Decode(&p)
		sizes = append(sizes, len(p.Movies))
		respond(w, http.StatusCreated, syncResponse{Added: countBucket{Movies: len(p.Movies)}})
	}))
	defer server.Close()

	c, _ := testClient(t, server.URL, 3) // chunk size 2
	result, err := c.SubmitHistory(context.Background(), records(5))
	if err != nil {
		t.Fatalf("SubmitHistory() error = %v", err)
	}

	if len(sizes) != 3 {
		t.Fatalf("expected 3 chunks, got %d (%v)", len(sizes), sizes)
	}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [2 2 1]", sizes)
	}
	if result.Added != 5 {
		t.Errorf("Added = %d, want 5", result.Added)
	}
}

func TestRateLimitRetryAfterHint(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		respond(w, http.StatusCreated, syncResponse{Added: countBucket{Movies: 2}})
	}))
	defer server.Close()

	c, waits := testClient(t, server.URL, 3)
	result, err := c.SubmitHistory(context.Background(), records(2))
	if err != nil {
		t.Fatalf("SubmitHistory() error = %v", err)
	}
	if result.Added != 2 {
		t.Errorf("Added = %d, want 2", result.Added)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Errorf("waits = %v, want the server's 7s hint", *waits)
	}
}

func TestRateLimitExhaustionFailsRemainder(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, waits := testClient(t, server.URL, 3) // chunk size 2
	result, err := c.SubmitHistory(context.Background(), records(5))
	if err != nil {
		t.Fatalf("rate limiting must not abort the run: %v", err)
	}

	// First chunk exhausts its retries; the remaining 5 records are
	// reported failed without another request.
	if requests != 3 {
		t.Errorf("requests = %d, want 3 (bounded retries, no further chunks)", requests)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v, want exactly one", result.Failures)
	}
	if !errors.Is(result.Failures[0].Err, ErrRateLimited) {
		t.Errorf("failure err = %v, want ErrRateLimited", result.Failures[0].Err)
	}
	if result.FailedItems() != 5 {
		t.Errorf("FailedItems() = %d, want all 5 records accounted for", result.FailedItems())
	}

	// Backoff grows between attempts.
	if len(*waits) != 2 || (*waits)[1] <= (*waits)[0] {
		t.Errorf("waits = %v, want monotonically growing delays", *waits)
	}
}

func TestAuthFailureIsFatalAndNotRetried(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, _ := testClient(t, server.URL, 3)
	_, err := c.SubmitHistory(context.Background(), records(2))
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, auth failures must not be retried", requests)
	}
}

func TestMissingTokenFailsBeforeAnyRequest(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	c, _ := testClient(t, server.URL, 3)
	c.tokens.path = filepath.Join(t.TempDir(), "missing.json")

	_, err := c.SubmitHistory(context.Background(), records(1))
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if requests != 0 {
		t.Errorf("requests = %d, want none with no usable token", requests)
	}
}

func TestTransientErrorPartialSuccess(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var p syncPayload
		json.NewDecoder(r.Body).Decode(&p)
		// The chunk containing Film 1 always fails; later chunks work.
		if p.Movies[0].Title == "Film 1" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		respond(w, http.StatusCreated, syncResponse{Added: countBucket{Movies: len(p.Movies)}})
	}))
	defer server.Close()

	// Two attempts keep the consecutive-failure streak below the
	// breaker's trip threshold.
	c, _ := testClient(t, server.URL, 2)
	result, err := c.SubmitHistory(context.Background(), records(4))
	if err != nil {
		t.Fatalf("per-chunk failures must not abort the run: %v", err)
	}

	if result.Added != 2 {
		t.Errorf("Added = %d, want 2 (second chunk delivered)", result.Added)
	}
	if len(result.Failures) != 1 || result.FailedItems() != 2 {
		t.Fatalf("failures = %+v, want one failed chunk of 2 items", result.Failures)
	}
	var subErr *SubmissionError
	if !errors.As(result.Failures[0].Err, &subErr) {
		t.Fatalf("failure err = %v, want *SubmissionError", result.Failures[0].Err)
	}
	if subErr.Status != http.StatusBadGateway || subErr.Attempts != 2 {
		t.Errorf("SubmissionError = %+v, want status 502 after 2 attempts", subErr)
	}
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := testClient(t, server.URL, 5)
	result, err := c.SubmitHistory(context.Background(), records(2))
	if err != nil {
		t.Fatalf("breaker rejection must not abort the run: %v", err)
	}

	// Three consecutive failures open the circuit; the remaining
	// attempts are rejected without touching the wire.
	if requests != 3 {
		t.Errorf("requests = %d, want 3 before the circuit opens", requests)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v, want one failed chunk", result.Failures)
	}
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	var refreshed bool
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var grant tokenRequest
		json.NewDecoder(r.Body).Decode(&grant)
		if grant.GrantType != "refresh_token" || grant.RefreshToken != "refresh" {
			t.Errorf("unexpected grant: %+v", grant)
		}
		refreshed = true
		json.NewEncoder(w).Encode(Token{
			AccessToken:  "fresh-token",
			RefreshToken: "next-refresh",
			ExpiresIn:    7776000,
		})
	})
	mux.HandleFunc("/sync/history", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer fresh-token" {
			t.Errorf("Authorization = %q, want the refreshed token", auth)
		}
		respond(w, http.StatusCreated, syncResponse{Added: countBucket{Movies: 1}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, _ := testClient(t, server.URL, 3)
	c.tokens.path = writeTokenFile(t, t.TempDir(), Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := c.SubmitHistory(context.Background(), records(1)); err != nil {
		t.Fatalf("SubmitHistory() error = %v", err)
	}
	if !refreshed {
		t.Error("expired token was not refreshed")
	}

	// The refreshed token is persisted for the next run.
	saved, err := c.tokens.load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.AccessToken != "fresh-token" || saved.RefreshToken != "next-refresh" {
		t.Errorf("saved token = %+v", saved)
	}
	if saved.ExpiresAt <= time.Now().Unix() {
		t.Error("saved token has no future expiry")
	}
}

func TestNotFoundReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusCreated, syncResponse{
			Added:    countBucket{Movies: 1},
			NotFound: notFoundBucket{Movies: []movieEntry{{Title: "Obscure Short", Year: 1923}}},
		})
	}))
	defer server.Close()

	c, _ := testClient(t, server.URL, 3)
	result, err := c.SubmitHistory(context.Background(), records(2))
	if err != nil {
		t.Fatalf("SubmitHistory() error = %v", err)
	}
	if result.NotFound != 1 {
		t.Errorf("NotFound = %d, want 1", result.NotFound)
	}
	if len(result.NotFoundTitles) != 1 || result.NotFoundTitles[0] != "Obscure Short" {
		t.Errorf("NotFoundTitles = %v", result.NotFoundTitles)
	}
}

func TestSubmitEmptyBatch(t *testing.T) {
	c, _ := testClient(t, "http://127.0.0.1:0", 3)
	result, err := c.SubmitRatings(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
	if result.Added != 0 || len(result.Failures) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}
