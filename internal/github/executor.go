package github

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/alvmarrod/devrank/internal/credentials"
	"github.com/alvmarrod/devrank/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts    = 20
	defaultRetryMin       = 100 * time.Millisecond
	defaultRetryMax       = 2 * time.Second
	defaultThrottleMargin = 10 * time.Second

	// fallbackThrottleWait is used when neither the provider nor the pool
	// knows when the window resets
	fallbackThrottleWait = time.Minute
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeSoft
	outcomeUpstream
	outcomeThrottled
	outcomeTransient
	outcomeUnauthorized
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeSoft:
		return "soft_error"
	case outcomeUpstream:
		return "upstream_failure"
	case outcomeThrottled:
		return "throttled"
	case outcomeTransient:
		return "transient"
	case outcomeUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// classify maps one attempt onto the retry taxonomy
func classify(resp *Response, err error) outcome {
	if err != nil || resp == nil {
		return outcomeTransient
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return outcomeUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return outcomeThrottled
	case resp.StatusCode == http.StatusForbidden && (resp.RateRemaining == 0 || resp.RetryAfter > 0):
		return outcomeThrottled
	case resp.StatusCode >= 500:
		return outcomeTransient
	}

	for _, e := range resp.Errors {
		if e.Type == rateLimitedType {
			return outcomeThrottled
		}
	}
	if len(resp.Errors) > 0 {
		if strings.Contains(resp.Errors[0].Message, upstreamFailureMessage) {
			return outcomeUpstream
		}
		return outcomeSoft
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return outcomeSoft
	}
	if !resp.hasData() {
		return outcomeTransient
	}
	return outcomeSuccess
}

// ExecutorOptions tunes retry behaviour; zero values take the defaults
type ExecutorOptions struct {
	MaxAttempts    int
	RetryMin       time.Duration
	RetryMax       time.Duration
	ThrottleMargin time.Duration
}

// Executor issues one logical request through a chosen credential and
// absorbs transient failures and throttling on the caller's behalf
type Executor struct {
	transport Transport
	pool      *credentials.Pool
	tracker   *metrics.Tracker
	opts      ExecutorOptions

	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// NewExecutor creates an executor over transport and pool. tracker may be nil.
func NewExecutor(transport Transport, pool *credentials.Pool, tracker *metrics.Tracker, opts ExecutorOptions) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = defaultRetryMin
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = max(defaultRetryMax, opts.RetryMin)
	}
	if opts.ThrottleMargin <= 0 {
		opts.ThrottleMargin = defaultThrottleMargin
	}
	return &Executor{
		transport: transport,
		pool:      pool,
		tracker:   tracker,
		opts:      opts,
		now:       time.Now,
		sleep:     sleepContext,
		jitter:    uniformJitter,
	}
}

// Execute runs req with the credential at index and returns the "data"
// payload. Errors wrap ErrUnanswerable (skip and continue),
// ErrRetriesExhausted or ErrUnauthorized (abort the run), or the context error.
func (e *Executor) Execute(ctx context.Context, req Request, index int) (json.RawMessage, error) {
	cred := e.pool.Acquire(index)
	log := logrus.WithFields(logrus.Fields{"request": req.Name, "credential": cred.Index})

	attempts := 0
	throttleGrace := true
	var lastErr error

	for {
		if err := e.pool.Wait(ctx, cred.Index); err != nil {
			return nil, err
		}

		start := e.now()
		resp, err := e.transport.Send(ctx, cred.Token, req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.observe(cred.Index, resp)

		out := classify(resp, err)
		e.tracker.RecordRequest(out.String(), e.now().Sub(start))

		switch out {
		case outcomeSuccess:
			return resp.Data, nil

		case outcomeSoft, outcomeUpstream:
			msg := errorMessage(resp)
			log.WithField("outcome", out.String()).Warnf("Provider refused %s: %s", req, msg)
			return nil, fmt.Errorf("%w: %s: %s", ErrUnanswerable, req, msg)

		case outcomeUnauthorized:
			return nil, fmt.Errorf("%w: credential %d on %s", ErrUnauthorized, cred.Index, req)

		case outcomeThrottled:
			if !throttleGrace {
				attempts++
				if attempts >= e.opts.MaxAttempts {
					return nil, fmt.Errorf("%w after %d attempts: %s: still rate limited", ErrRetriesExhausted, attempts, req)
				}
			}
			throttleGrace = false

			wait := e.throttleWait(ctx, cred, resp)
			log.Warnf("Rate limited, sleeping %v before re-issuing %s", wait.Round(time.Second), req.Name)
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case outcomeTransient:
			lastErr = err
			if lastErr == nil {
				lastErr = fmt.Errorf("status %d without data", statusOf(resp))
			}
			attempts++
			if attempts >= e.opts.MaxAttempts {
				return nil, fmt.Errorf("%w after %d attempts: %s: %v", ErrRetriesExhausted, attempts, req, lastErr)
			}
			e.tracker.IncrementRetries()

			back := e.jitter(e.opts.RetryMin, e.opts.RetryMax)
			log.Debugf("Transient failure (attempt %d/%d), retrying in %v: %v", attempts, e.opts.MaxAttempts, back, lastErr)
			if err := e.sleep(ctx, back); err != nil {
				return nil, err
			}
		}
	}
}

// throttleWait works out how long to sleep before re-issuing a throttled
// request: Retry-After when given, else the queried reset time, else the
// last observed window, plus the safety margin
func (e *Executor) throttleWait(ctx context.Context, cred credentials.Credential, resp *Response) time.Duration {
	now := e.now()
	if resp != nil && resp.RetryAfter > 0 {
		return resp.RetryAfter + e.opts.ThrottleMargin
	}

	resetAt, err := e.queryReset(ctx, cred)
	if err != nil {
		logrus.WithField("credential", cred.Index).Debugf("Rate limit query failed: %v", err)
		if w := e.pool.State(cred.Index); w.Observed && w.ResetAt.After(now) {
			resetAt = w.ResetAt
		} else {
			resetAt = now.Add(fallbackThrottleWait)
		}
	}

	wait := resetAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait + e.opts.ThrottleMargin
}

func (e *Executor) queryReset(ctx context.Context, cred credentials.Credential) (time.Time, error) {
	resp, err := e.transport.Send(ctx, cred.Token, rateLimitRequest())
	if err != nil {
		return time.Time{}, err
	}
	if resp == nil || !resp.hasData() {
		return time.Time{}, fmt.Errorf("rate limit query returned no data")
	}

	var payload struct {
		RateLimit struct {
			Remaining int       `json:"remaining"`
			ResetAt   time.Time `json:"resetAt"`
			Limit     int       `json:"limit"`
		} `json:"rateLimit"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode rate limit: %w", err)
	}
	if payload.RateLimit.ResetAt.IsZero() {
		return time.Time{}, fmt.Errorf("rate limit query returned no reset time")
	}

	e.pool.Observe(cred.Index, payload.RateLimit.Remaining, payload.RateLimit.ResetAt)
	return payload.RateLimit.ResetAt, nil
}

func (e *Executor) observe(index int, resp *Response) {
	if resp == nil || resp.RateRemaining < 0 || resp.RateReset.IsZero() {
		return
	}
	e.pool.Observe(index, resp.RateRemaining, resp.RateReset)
}

func errorMessage(resp *Response) string {
	if resp == nil {
		return ""
	}
	if len(resp.Errors) > 0 {
		return resp.Errors[0].Message
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

func statusOf(resp *Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
