package crawler

import (
	"context"
	"errors"
)

// ErrUnanswerable is returned by an API when the provider refused a specific
// query. The crawler skips that subject or collection and carries on.
var ErrUnanswerable = errors.New("crawler: query unanswerable")

// Language is one entry of a collection's language breakdown
type Language struct {
	Name  string
	Color string
	Size  int
}

// Contribution is an edge from a subject to a collection, weighted by the
// number of contributions, with the collection's top languages attached
type Contribution struct {
	Collection string
	Count      int
	Languages  []Language
}

// CrawlTask is the unit of frontier work
type CrawlTask struct {
	Login string
	Hops  int
}

// API is the remote graph-discovery collaborator. cred selects the credential
// the request is issued with.
type API interface {
	Contributions(ctx context.Context, login string, cred int) ([]Contribution, error)
	Members(ctx context.Context, collection string, cred int) ([]string, error)
}

// GraphWriter receives idempotent upserts. Edge writes whose endpoints are
// not materialized are dropped by the writer.
type GraphWriter interface {
	UpsertSubject(ctx context.Context, login string) error
	UpsertCollection(ctx context.Context, name string) error
	UpsertLanguage(ctx context.Context, name, color string) error
	RecordContains(ctx context.Context, collection, language string, size int) error
	RecordContributes(ctx context.Context, login, collection string, count int) error
}

// Credentials picks credential indices; satisfied by *credentials.Pool
type Credentials interface {
	Size() int
	Next() int
}
