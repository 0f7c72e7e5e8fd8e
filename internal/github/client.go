// Package github talks to the GitHub GraphQL API: a colly-backed transport,
// a rate-limit aware executor, and the two discovery queries the crawler
// needs (a user's contributed repositories, a repository's members).
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alvmarrod/devrank/internal/crawler"
	"github.com/sirupsen/logrus"
)

// Requester is satisfied by *Executor
type Requester interface {
	Execute(ctx context.Context, req Request, index int) (json.RawMessage, error)
}

// Client implements crawler.API on top of a Requester
type Client struct {
	exec Requester
}

// NewClient creates a discovery client
func NewClient(exec Requester) *Client {
	return &Client{exec: exec}
}

type contributionsPayload struct {
	User *struct {
		ContributionsCollection struct {
			CommitContributionsByRepository []struct {
				Repository struct {
					NameWithOwner string `json:"nameWithOwner"`
					IsPrivate     bool   `json:"isPrivate"`
					Languages     *struct {
						Edges []struct {
							Size int `json:"size"`
							Node struct {
								Name  string `json:"name"`
								Color string `json:"color"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"languages"`
				} `json:"repository"`
				Contributions struct {
					TotalCount int `json:"totalCount"`
				} `json:"contributions"`
			} `json:"commitContributionsByRepository"`
		} `json:"contributionsCollection"`
	} `json:"user"`
}

// Contributions returns the public repositories login committed to, with
// the commit count and the top languages of each
func (c *Client) Contributions(ctx context.Context, login string, cred int) ([]crawler.Contribution, error) {
	data, err := c.exec.Execute(ctx, contributionsRequest(login), cred)
	if err != nil {
		return nil, mapError(err)
	}

	var payload contributionsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode contributions for %s: %v", crawler.ErrUnanswerable, login, err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("%w: user %s not found", crawler.ErrUnanswerable, login)
	}

	var out []crawler.Contribution
	for _, cr := range payload.User.ContributionsCollection.CommitContributionsByRepository {
		repo := cr.Repository
		if repo.IsPrivate || repo.NameWithOwner == "" {
			continue
		}
		contrib := crawler.Contribution{
			Collection: repo.NameWithOwner,
			Count:      cr.Contributions.TotalCount,
		}
		if repo.Languages != nil {
			for _, edge := range repo.Languages.Edges {
				contrib.Languages = append(contrib.Languages, crawler.Language{
					Name:  edge.Node.Name,
					Color: edge.Node.Color,
					Size:  edge.Size,
				})
			}
		}
		out = append(out, contrib)
	}
	return out, nil
}

type membersPayload struct {
	Repository *struct {
		MentionableUsers struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []struct {
				Login string `json:"login"`
			} `json:"nodes"`
		} `json:"mentionableUsers"`
	} `json:"repository"`
}

// Members follows the mentionable-users cursor until exhaustion. If a page
// after the first one is refused, the members gathered so far are returned.
func (c *Client) Members(ctx context.Context, collection string, cred int) ([]string, error) {
	owner, name, err := crawler.SplitCollection(collection)
	if err != nil {
		return nil, err
	}

	var (
		members []string
		after   *string
		page    int
	)
	for {
		data, err := c.exec.Execute(ctx, membersRequest(owner, name, after), cred)
		if err != nil {
			if page > 0 && errors.Is(err, ErrUnanswerable) {
				logrus.WithFields(logrus.Fields{"collection": collection, "page": page}).
					Warnf("Member page refused, keeping %d members: %v", len(members), err)
				return members, nil
			}
			return nil, mapError(err)
		}

		var payload membersPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode members of %s: %v", crawler.ErrUnanswerable, collection, err)
		}
		if payload.Repository == nil {
			if page > 0 {
				return members, nil
			}
			return nil, fmt.Errorf("%w: repository %s not found", crawler.ErrUnanswerable, collection)
		}

		users := payload.Repository.MentionableUsers
		for _, n := range users.Nodes {
			if n.Login != "" {
				members = append(members, n.Login)
			}
		}
		page++

		next := users.PageInfo.EndCursor
		if !users.PageInfo.HasNextPage || next == "" || (after != nil && *after == next) {
			return members, nil
		}
		after = &next
	}
}

// mapError translates the executor's soft failure into the crawler's so the
// crawler never needs to import this package
func mapError(err error) error {
	if errors.Is(err, ErrUnanswerable) {
		return fmt.Errorf("%w: %v", crawler.ErrUnanswerable, err)
	}
	return err
}
