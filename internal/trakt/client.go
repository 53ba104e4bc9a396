// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package trakt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/reelsync/reelsync/internal/config"
	"github.com/reelsync/reelsync/internal/logging"
	"github.com/reelsync/reelsync/internal/models"
)

const (
	endpointHistory = "history"
	endpointRatings = "ratings"

	// apiVersion is the value of the trakt-api-version header.
	apiVersion = "2"
)

// Client submits watch history and ratings to the Trakt sync API.
//
// Every request carries the bearer credential plus the client
// identifier header. Batches are split into chunks of the configured
// size; each chunk gets bounded retries with exponential backoff for
// rate limiting (HTTP 429, honoring Retry-After) and transient server
// errors. A proactive client-side limiter keeps requests at Trakt's
// one-POST-per-second contract, and a circuit breaker fails remaining
// chunks fast when the API is down.
//
// Safe for use from a single sync run; the client holds no mutable
// state beyond the rate limiter and breaker, both concurrency-safe.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string

	httpClient *http.Client
	tokens     *tokenStore
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]

	chunkSize      int
	maxAttempts    int
	retryBaseDelay time.Duration

	// now and wait are injectable for testing retry behavior without
	// real delays.
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Trakt API client from the destination and sync
// configuration.
func NewClient(cfg config.TraktConfig, syncCfg config.SyncConfig) *Client {
	return &Client{
		baseURL:        cfg.APIURL,
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		redirectURI:    cfg.RedirectURI,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		tokens:         &tokenStore{path: cfg.TokenPath},
		limiter:        rate.NewLimiter(rate.Every(time.Second), 1),
		breaker:        newBreaker(),
		chunkSize:      syncCfg.ChunkSize,
		maxAttempts:    syncCfg.RetryAttempts,
		retryBaseDelay: syncCfg.RetryDelay,
		now:            time.Now,
		wait:           waitContext,
	}
}

// waitContext is a cancellable sleep.
func waitContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitHistory adds the records to the account's watch history.
// The returned error is nil unless the whole pass must abort
// (authentication failure or context cancellation); per-chunk delivery
// failures are reported inside the result.
func (c *Client) SubmitHistory(ctx context.Context, records []models.WatchRecord) (*models.SyncResult, error) {
	return c.submit(ctx, endpointHistory, records)
}

// SubmitRatings adds the records' star ratings to the account. All
// records must carry a rating; the orchestrator filters the batch.
func (c *Client) SubmitRatings(ctx context.Context, records []models.WatchRecord) (*models.SyncResult, error) {
	return c.submit(ctx, endpointRatings, records)
}

// movieEntry is one element of a sync payload or a not_found response.
type movieEntry struct {
	Title     string `json:"title"`
	Year      int    `json:"year,omitempty"`
	WatchedAt string `json:"watched_at,omitempty"`
	RatedAt   string `json:"rated_at,omitempty"`
	Rating    int    `json:"rating,omitempty"`
}

// syncPayload is the request body of both sync endpoints.
type syncPayload struct {
	Movies []movieEntry `json:"movies"`
}

// syncResponse is the success body of both sync endpoints.
type syncResponse struct {
	Added    countBucket    `json:"added"`
	Updated  countBucket    `json:"updated"`
	Existing countBucket    `json:"existing"`
	NotFound notFoundBucket `json:"not_found"`
}

type countBucket struct {
	Movies int `json:"movies"`
}

type notFoundBucket struct {
	Movies []movieEntry `json:"movies"`
}

// submit delivers one batch, chunk by chunk. Chunks fail
// independently: a rate-limit exhaustion stops the batch and reports
// the unsent remainder as failed, while other delivery failures are
// recorded and the next chunk proceeds.
func (c *Client) submit(ctx context.Context, endpoint string, records []models.WatchRecord) (*models.SyncResult, error) {
	result := &models.SyncResult{}
	if len(records) == 0 {
		return result, nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := buildPayload(endpoint, records)
	if err != nil {
		return nil, err
	}

	chunks := chunkEntries(payload, c.chunkSize)
	logging.Info().Str("endpoint", endpoint).Int("items", len(records)).Int("chunks", len(chunks)).Msg("Submitting batch")

	for i, chunk := range chunks {
		resp, err := c.postChunk(ctx, endpoint, token, syncPayload{Movies: chunk})
		if err == nil {
			mergeResponse(result, resp)
			continue
		}

		if errors.Is(err, ErrAuthFailed) || ctx.Err() != nil {
			return nil, err
		}

		if errors.Is(err, ErrRateLimited) {
			// The API is throttling persistently; the rest of this
			// batch would only be throttled too. Account for every
			// unsent record and stop the batch.
			remaining := 0
			for _, rest := range chunks[i:] {
				remaining += len(rest)
			}
			result.Failures = append(result.Failures, models.ChunkFailure{Items: remaining, Err: err})
			logging.Error().Err(err).Str("endpoint", endpoint).Int("unsent", remaining).Msg("Batch aborted by rate limiting")
			return result, nil
		}

		result.Failures = append(result.Failures, models.ChunkFailure{Items: len(chunk), Err: err})
		logging.Error().Err(err).Str("endpoint", endpoint).Int("chunk", i+1).Msg("Chunk submission failed")
	}

	return result, nil
}

// buildPayload converts records into wire entries for the endpoint.
// Day-granularity dates are submitted at noon UTC so the destination
// never shifts them across a day boundary.
func buildPayload(endpoint string, records []models.WatchRecord) ([]movieEntry, error) {
	entries := make([]movieEntry, 0, len(records))
	for _, r := range records {
		e := movieEntry{Title: r.Title, Year: r.Year}
		stamp := r.WatchedAt.UTC().Format("2006-01-02") + "T12:00:00.000Z"

		switch endpoint {
		case endpointHistory:
			e.WatchedAt = stamp
		case endpointRatings:
			if r.Rating == nil {
				continue
			}
			rating, err := ConvertRating(*r.Rating)
			if err != nil {
				return nil, err
			}
			e.Rating = rating
			e.RatedAt = stamp
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// chunkEntries splits entries into slices of at most size items.
func chunkEntries(entries []movieEntry, size int) [][]movieEntry {
	var chunks [][]movieEntry
	for len(entries) > size {
		chunks = append(chunks, entries[:size])
		entries = entries[size:]
	}
	if len(entries) > 0 {
		chunks = append(chunks, entries)
	}
	return chunks
}

// mergeResponse folds one chunk's response counts into the batch
// result. Updated ratings count as already-present rather than added.
func mergeResponse(result *models.SyncResult, resp *syncResponse) {
	result.Added += resp.Added.Movies
	result.Existing += resp.Existing.Movies + resp.Updated.Movies
	result.NotFound += len(resp.NotFound.Movies)
	for _, m := range resp.NotFound.Movies {
		result.NotFoundTitles = append(result.NotFoundTitles, m.Title)
	}
}

// serverStatusError marks a retryable HTTP 5xx response.
type serverStatusError struct {
	status int
}

func (e *serverStatusError) Error() string {
	return fmt.Sprintf("server error: status %d", e.status)
}

// postChunk delivers one chunk with bounded retries. Each attempt
// passes the client-side rate limiter and the circuit breaker; 429
// responses wait for the server-suggested interval (or exponential
// backoff) and retry, transient errors back off exponentially, and
// auth or client errors return immediately without retrying.
func (c *Client) postChunk(ctx context.Context, endpoint, token string, payload syncPayload) (*syncResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	var (
		lastErr     error
		lastStatus  int
		rateLimited bool
	)
	delay := c.retryBaseDelay

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.doPost(ctx, endpoint, token, body)
		})

		retryDelay := delay
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, &SubmissionError{Endpoint: endpoint, Attempts: attempt, Err: err}

		case err != nil:
			// Connection failure or 5xx; retry with backoff.
			lastErr = err
			lastStatus = 0
			var statusErr *serverStatusError
			if errors.As(err, &statusErr) {
				lastStatus = statusErr.status
			}
			rateLimited = false

		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			defer resp.Body.Close()
			out := &syncResponse{}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, &SubmissionError{Endpoint: endpoint, Status: resp.StatusCode, Attempts: attempt,
					Err: fmt.Errorf("decode response: %w", err)}
			}
			return out, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: %s rejected with status %d", ErrAuthFailed, endpoint, resp.StatusCode)

		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = ErrRateLimited
			lastStatus = resp.StatusCode
			rateLimited = true
			if after := retryAfter(resp); after > 0 {
				retryDelay = after
			}

		default:
			// Client errors other than auth are not retryable.
			_ = resp.Body.Close()
			return nil, &SubmissionError{Endpoint: endpoint, Status: resp.StatusCode, Attempts: attempt,
				Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}

		if attempt < c.maxAttempts {
			logging.Warn().Err(lastErr).Str("endpoint", endpoint).
				Int("attempt", attempt).Int("max_attempts", c.maxAttempts).
				Dur("delay", retryDelay).Msg("Retrying chunk")
			if err := c.wait(ctx, retryDelay); err != nil {
				return nil, err
			}
			delay *= 2
		}
	}

	if rateLimited {
		return nil, fmt.Errorf("%w after %d attempts", ErrRateLimited, c.maxAttempts)
	}
	return nil, &SubmissionError{Endpoint: endpoint, Status: lastStatus, Attempts: c.maxAttempts, Err: lastErr}
}

// doPost performs a single authenticated POST. Connection failures and
// server errors return an error so the circuit breaker counts them;
// every other response passes through for classification by the
// caller.
func (c *Client) doPost(ctx context.Context, endpoint, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sync/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 500 {
		_ = resp.Body.Close()
		return nil, &serverStatusError{status: resp.StatusCode}
	}
	return resp, nil
}

// retryAfter parses a Retry-After seconds hint, or 0 when absent or
// malformed.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
