package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "devrank-crawler"

// CollyTransport posts GraphQL documents through a colly collector. Each Send
// works on a clone so concurrent fan-out workers never share callbacks.
type CollyTransport struct {
	endpoint string
	base     *colly.Collector
}

// NewCollyTransport creates a transport for the GraphQL endpoint
func NewCollyTransport(endpoint string, timeout time.Duration) *CollyTransport {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(defaultUserAgent),
	)
	// Rate-limit and server errors carry headers the executor needs
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(timeout)

	return &CollyTransport{endpoint: endpoint, base: c}
}

type graphQLBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Send implements Transport
func (t *CollyTransport) Send(ctx context.Context, token string, req Request) (*Response, error) {
	body, err := json.Marshal(graphQLBody{Query: req.Query, Variables: req.Variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", req.Name, err)
	}

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json")
	if token != "" {
		hdr.Set("Authorization", "bearer "+token)
	}

	c := t.base.Clone()
	c.ParseHTTPErrorResponse = true
	c.Context = ctx

	var got *colly.Response
	c.OnResponse(func(r *colly.Response) {
		got = r
	})

	if err := c.Request(http.MethodPost, t.endpoint, bytes.NewReader(body), nil, hdr); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", req.Name, err)
	}
	if got == nil {
		return nil, errors.New(req.Name + ": no response received")
	}

	var headers http.Header
	if got.Headers != nil {
		headers = *got.Headers
	}
	return decodeResponse(got.StatusCode, headers, got.Body)
}

func decodeResponse(status int, headers http.Header, body []byte) (*Response, error) {
	resp := &Response{StatusCode: status}
	resp.RateRemaining, resp.RateReset, resp.RetryAfter = parseRateHeaders(headers)

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []GraphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if status >= 200 && status < 300 {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
		// Error pages are not always JSON; the status is enough to classify
		return resp, nil
	}
	resp.Data = envelope.Data
	resp.Errors = envelope.Errors
	return resp, nil
}

func parseRateHeaders(h http.Header) (remaining int, reset time.Time, retryAfter time.Duration) {
	remaining = -1
	if h == nil {
		return remaining, reset, retryAfter
	}
	if v := strings.TrimSpace(h.Get("X-RateLimit-Remaining")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = n
		}
	}
	if v := strings.TrimSpace(h.Get("X-RateLimit-Reset")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			reset = time.Unix(n, 0)
		}
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retryAfter = time.Duration(n) * time.Second
		}
	}
	return remaining, reset, retryAfter
}
