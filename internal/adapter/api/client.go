package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fishnet-client/fishnet/internal/config"
	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/observability"
)

// userAgent is built once at startup by the caller (internal/app) and
// passed in, following spec §6.1: "fishnet-<os>-<arch>/<version>".

// Client implements the coordinator RPCs (spec §4.1): acquire, submit
// (analysis/move), abort, status, check_key. The coordinator goroutine
// makes the acquire/submit/abort/status calls, but the progress reporter
// also posts partial analyses through the same Client from its own
// goroutines, so calls are not serialized. Client holds no mutable state
// after New, so it carries no internal locking of its own beyond what
// net/http already provides.
type Client struct {
	cfg       config.Config
	hc        *http.Client
	endpoint  string
	key       string
	userAgent string
}

// New builds a Client. endpoint is the base coordinator URL (no trailing
// slash); key is the static API key; userAgent is the fully-formed
// "fishnet-<os>-<arch>/<version>" string.
func New(cfg config.Config, endpoint, key, userAgent string) *Client {
	return &Client{
		cfg:       cfg,
		endpoint:  endpoint,
		key:       key,
		userAgent: userAgent,
		hc: &http.Client{
			Timeout:   cfg.HTTPReadTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// AcquireResult is an alias for domain.AcquireResult so call sites in
// this package can keep using the short name.
type AcquireResult = domain.AcquireResult

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	bc := c.cfg.GetAPIBackoffConfig()
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = bc.InitialInterval
	expo.MaxInterval = bc.MaxInterval
	expo.Multiplier = bc.Multiplier
	expo.MaxElapsedTime = 0 // unbounded retries for transient errors, per spec §4.1
	return backoff.WithContext(expo, ctx)
}

// Acquire requests the next job, optionally excluding user-queue work
// (slow) and optionally setting stop=true when retiring. flavor is the
// engine's reported evaluation mode, sent as the optional "stockfish"
// block.
func (c *Client) Acquire(ctx context.Context, slow, stop bool, flavor domain.Flavor) (AcquireResult, error) {
	body := acquireRequest{
		Fishnet: fishnetIdentity{Version: "2", APIKey: c.key},
	}
	if flavor != "" {
		body.Stockfish = &stockfishIdentity{Flavor: string(flavor)}
	}
	q := url.Values{}
	if slow {
		q.Set("slow", "true")
	}
	if stop {
		q.Set("stop", "true")
	}
	return c.acquireOrSubmit(ctx, "acquire", "/fishnet/acquire", q, body)
}

// SubmitAnalysis submits a finished (or failed) analysis batch,
// combined with the next acquire in a single round-trip (spec §4.1).
func (c *Client) SubmitAnalysis(ctx context.Context, workID string, results []domain.PlyResult, stop bool, flavor domain.Flavor) (AcquireResult, error) {
	wire := make([]plyResultWire, len(results))
	for i, r := range results {
		wire[i] = plyResultToWire(r)
	}
	body := submitRequest{
		Fishnet:  fishnetIdentity{Version: "2", APIKey: c.key},
		Analysis: wire,
	}
	if flavor != "" {
		body.Stockfish = &stockfishIdentity{Flavor: string(flavor)}
	}
	q := url.Values{}
	if stop {
		q.Set("stop", "true")
	}
	return c.acquireOrSubmit(ctx, "submit_analysis", "/fishnet/analysis/"+workID, q, body)
}

// SubmitMove submits the result of a Move job.
func (c *Client) SubmitMove(ctx context.Context, workID, bestMove string, stop bool) (AcquireResult, error) {
	body := submitRequest{
		Fishnet: fishnetIdentity{Version: "2", APIKey: c.key},
		Move:    &moveWire{BestMove: bestMove},
	}
	q := url.Values{}
	if stop {
		q.Set("stop", "true")
	}
	return c.acquireOrSubmit(ctx, "submit_move", "/fishnet/move/"+workID, q, body)
}

// acquireOrSubmit runs the shared request/response/retry shape behind
// acquire and every submit endpoint: they all accept the same 202/204
// reply contract.
func (c *Client) acquireOrSubmit(ctx context.Context, op, path string, q url.Values, body any) (AcquireResult, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	var result AcquireResult
	attempt := 0
	runErr := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			observability.APIRetriesTotal.WithLabelValues(op).Inc()
		}
		req, err := c.newRequest(ctx, http.MethodPost, path, q, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.APIRequestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
			return err // transient: connection error
		}
		defer func() { _ = resp.Body.Close() }()

		switch resp.StatusCode {
		case http.StatusAccepted:
			var jw jobWire
			if err := json.NewDecoder(resp.Body).Decode(&jw); err != nil {
				return fmt.Errorf("%s: decode job: %w", op, err)
			}
			j := jw.toDomainJob()
			result = AcquireResult{Job: &j}
			observability.APIRequestDuration.WithLabelValues(op, "202").Observe(time.Since(start).Seconds())
			return nil
		case http.StatusNoContent:
			result = AcquireResult{NoWork: true}
			observability.APIRequestDuration.WithLabelValues(op, "204").Observe(time.Since(start).Seconds())
			return nil
		case http.StatusNotFound:
			// Lost race on submit, or unsupported endpoint: log and
			// discard, not an error the caller needs to retry.
			slog.Warn("fishnet: submit target not found, discarding", slog.String("op", op))
			result = AcquireResult{NoWork: true}
			return nil
		default:
			return c.classifyAndWrap(op, resp, time.Since(start))
		}
	}, c.backoff(ctx))

	if runErr != nil {
		return AcquireResult{}, runErr
	}
	return result, nil
}

// Abort tells the coordinator an acquired job will not be completed.
// A 404 reply is benign (spec §4.1).
func (c *Client) Abort(ctx context.Context, workID string) error {
	body := acquireRequest{Fishnet: fishnetIdentity{Version: "2", APIKey: c.key}}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("abort: marshal request: %w", err)
	}
	return backoff.Retry(func() error {
		req, err := c.newRequest(ctx, http.MethodPost, "/fishnet/abort/"+workID, nil, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return c.classifyAndWrap("abort", resp, time.Since(start))
	}, c.backoff(ctx))
}

// Status fetches the queue backlog snapshot. A 404 means the server
// does not support the endpoint and is reported as ok=false, not error.
func (c *Client) Status(ctx context.Context) (domain.QueueStatus, bool, error) {
	var status domain.QueueStatus
	ok := false
	err := backoff.Retry(func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/fishnet/status", nil, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch resp.StatusCode {
		case http.StatusOK:
			var wire statusWire
			if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
				return fmt.Errorf("status: decode: %w", err)
			}
			status = wire.toDomain()
			ok = true
			return nil
		case http.StatusNotFound:
			ok = false
			return nil
		default:
			return c.classifyAndWrap("status", resp, time.Since(start))
		}
	}, c.backoff(ctx))
	return status, ok, err
}

// CheckKey validates the configured API key against the coordinator
// before the run loop starts (spec §7 preflight).
func (c *Client) CheckKey(ctx context.Context, key string) (bool, error) {
	valid := false
	err := backoff.Retry(func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/fishnet/key/"+key, nil, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch resp.StatusCode {
		case http.StatusOK:
			valid = true
			return nil
		case http.StatusNotFound:
			valid = false
			return nil
		default:
			return c.classifyAndWrap("check_key", resp, time.Since(start))
		}
	}, c.backoff(ctx))
	return valid, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.endpoint + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// classifyAndWrap turns a non-2xx status into either a retryable error
// (returned as-is, so backoff.Retry keeps going) or a backoff.Permanent
// fatal error, per the classification table in spec §4.1.
func (c *Client) classifyAndWrap(op string, resp *http.Response, elapsed time.Duration) error {
	status := resp.StatusCode
	kind := domain.ClassifyHTTPStatus(status)
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	baseErr := fmt.Errorf("%s: status %d: %s", op, status, string(snippet))

	observability.APIRequestDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(elapsed.Seconds())

	switch kind {
	case domain.KindUpdateRequired:
		return backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrUpdateRequired, baseErr))
	case domain.KindAuth:
		return backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrAuth, baseErr))
	case domain.KindTransient:
		return baseErr
	default:
		return backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrProtocolMismatch, baseErr))
	}
}
