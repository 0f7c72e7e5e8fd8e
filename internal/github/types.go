package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnanswerable marks a request the provider refused to answer. The
	// caller skips the affected subject or collection for that operation only.
	ErrUnanswerable = errors.New("github: query unanswerable")

	// ErrRetriesExhausted is fatal: the request could not be completed within
	// the attempt budget and continuing would leave an unflagged gap.
	ErrRetriesExhausted = errors.New("github: retries exhausted")

	// ErrUnauthorized is fatal: the provider rejected the credential
	ErrUnauthorized = errors.New("github: credential rejected")
)

const (
	rateLimitedType        = "RATE_LIMITED"
	upstreamFailureMessage = "Something went wrong while executing your query"
)

// Request is one GraphQL operation. Identifiers travel in Variables, never
// spliced into Query.
type Request struct {
	Name      string
	Query     string
	Variables map[string]any
}

func (r Request) String() string {
	if len(r.Variables) == 0 {
		return r.Name
	}
	return fmt.Sprintf("%s%v", r.Name, r.Variables)
}

// GraphQLError is one entry of the response "errors" array
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Response is the decoded envelope plus the rate-limit headers
type Response struct {
	StatusCode int
	Data       json.RawMessage
	Errors     []GraphQLError

	// RateRemaining is -1 when the header is absent
	RateRemaining int
	RateReset     time.Time
	RetryAfter    time.Duration
}

func (r *Response) hasData() bool {
	return len(r.Data) > 0 && string(r.Data) != "null"
}

// Transport sends a request with the given token
type Transport interface {
	Send(ctx context.Context, token string, req Request) (*Response, error)
}
