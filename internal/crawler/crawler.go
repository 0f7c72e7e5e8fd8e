package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/alvmarrod/devrank/internal/metrics"
	"github.com/sirupsen/logrus"
)

const defaultFanoutFactor = 1.4

// Options tunes the crawler
type Options struct {
	// FanoutFactor multiplies the credential count to size the fan-out
	// worker set
	FanoutFactor float64
}

// Crawler runs the hop-bounded breadth-first expansion followed by the
// terminal fan-out
type Crawler struct {
	api          API
	writer       GraphWriter
	registry     Registry
	creds        Credentials
	frontier     *Frontier
	terminal     *TerminalSet
	tracker      *metrics.Tracker
	fanoutFactor float64
}

// NewCrawler creates a new crawler instance. tracker may be nil.
func NewCrawler(api API, writer GraphWriter, registry Registry, creds Credentials, tracker *metrics.Tracker, opts Options) *Crawler {
	if opts.FanoutFactor < 1 {
		opts.FanoutFactor = defaultFanoutFactor
	}
	return &Crawler{
		api:          api,
		writer:       writer,
		registry:     registry,
		creds:        creds,
		frontier:     NewFrontier(),
		terminal:     NewTerminalSet(),
		tracker:      tracker,
		fanoutFactor: opts.FanoutFactor,
	}
}

// Frontier exposes the pending bounded-phase work
func (c *Crawler) Frontier() *Frontier {
	return c.frontier
}

// Terminal exposes the subjects deferred to the fan-out phase
func (c *Crawler) Terminal() *TerminalSet {
	return c.terminal
}

// Run crawls from seed with the given hop budget: the bounded phase drains
// the frontier on the calling goroutine, then the terminal subjects are
// fanned out. Any returned error is fatal for the run.
func (c *Crawler) Run(ctx context.Context, seed string, hops int) error {
	logrus.Infof("Bounded phase starting: seed=%s, hops=%d", seed, hops)

	if err := c.Expand(ctx, seed, hops); err != nil {
		return err
	}

	logrus.Infof("Bounded phase complete: %d terminal subjects queued", c.terminal.Len())
	return c.Dispatch(ctx)
}

// Expand expands seed and then every frontier task in FIFO order until the
// frontier is empty
func (c *Crawler) Expand(ctx context.Context, seed string, hops int) error {
	if err := c.expandSubject(ctx, seed, hops, c.creds.Next()); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, ok := c.frontier.Pop()
		if !ok {
			return nil
		}
		if err := c.expandSubject(ctx, task.Login, task.Hops, c.creds.Next()); err != nil {
			return err
		}
	}
}

// expandSubject claims login, records its contributions and expands the
// newly seen collections with one hop less
func (c *Crawler) expandSubject(ctx context.Context, login string, hops, cred int) error {
	if hops < 0 {
		return nil
	}

	log := logrus.WithFields(logrus.Fields{"login": login, "hops": hops, "credential": cred})

	if err := ValidateLogin(login); err != nil {
		log.Warnf("Skipping subject: %v", err)
		return nil
	}

	won, err := c.registry.TryClaim(ctx, NamespaceSubject, login)
	if err != nil {
		return err
	}
	if !won {
		log.Debug("Subject already claimed")
		return nil
	}
	if hops > 0 {
		// Reached again with budget left after an earlier zero-budget sighting
		c.terminal.Remove(login)
	}
	c.tracker.IncrementSubjectsClaimed()
	log.Info("Subject claimed")

	contribs, err := c.api.Contributions(ctx, login, cred)
	if err != nil {
		if errors.Is(err, ErrUnanswerable) {
			log.Warnf("Skipping subject contributions: %v", err)
			return nil
		}
		return fmt.Errorf("contributions of %s: %w", login, err)
	}

	c.write(log, "subject", c.writer.UpsertSubject(ctx, login))

	var pending []string
	for _, contrib := range contribs {
		if err := ValidateCollection(contrib.Collection); err != nil {
			log.Warnf("Skipping collection: %v", err)
			continue
		}

		if hops > 0 {
			c.materializeCollection(ctx, log, contrib)
		}

		// Edges do not consume budget; the writer drops them when the
		// collection was never materialized
		if c.write(log, "contributes", c.writer.RecordContributes(ctx, login, contrib.Collection, contrib.Count)) {
			c.tracker.IncrementEdgesRecorded()
		}

		if hops > 0 {
			seen, err := c.registry.Claimed(ctx, NamespaceCollection, contrib.Collection)
			if err != nil {
				return err
			}
			if !seen {
				pending = append(pending, contrib.Collection)
			}
		}
	}

	for _, collection := range pending {
		if err := c.expandCollection(ctx, collection, hops-1, cred); err != nil {
			return err
		}
	}
	return nil
}

// expandCollection claims collection and routes its unclaimed members to the
// frontier, or to the terminal set once the budget is exhausted
func (c *Crawler) expandCollection(ctx context.Context, collection string, hops, cred int) error {
	if hops < 0 {
		return nil
	}

	log := logrus.WithFields(logrus.Fields{"collection": collection, "hops": hops, "credential": cred})

	won, err := c.registry.TryClaim(ctx, NamespaceCollection, collection)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	c.tracker.IncrementCollectionsClaimed()
	log.Info("Collection claimed")

	members, err := c.api.Members(ctx, collection, cred)
	if err != nil {
		if errors.Is(err, ErrUnanswerable) {
			log.Warnf("Skipping collection members: %v", err)
			return nil
		}
		return fmt.Errorf("members of %s: %w", collection, err)
	}

	queued, deferred := 0, 0
	for _, member := range members {
		if err := ValidateLogin(member); err != nil {
			log.Debugf("Ignoring member: %v", err)
			continue
		}
		seen, err := c.registry.Claimed(ctx, NamespaceSubject, member)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		if hops == 0 {
			if c.terminal.Add(member) {
				c.tracker.IncrementTerminal()
				deferred++
			}
			continue
		}
		c.frontier.Push(CrawlTask{Login: member, Hops: hops})
		queued++
	}

	log.WithFields(logrus.Fields{"members": len(members), "queued": queued, "terminal": deferred}).
		Info("Collection expanded")
	return nil
}

func (c *Crawler) materializeCollection(ctx context.Context, log *logrus.Entry, contrib Contribution) {
	if !c.write(log, "collection", c.writer.UpsertCollection(ctx, contrib.Collection)) {
		return
	}
	for _, lang := range contrib.Languages {
		if lang.Name == "" {
			continue
		}
		c.write(log, "language", c.writer.UpsertLanguage(ctx, lang.Name, lang.Color))
		if c.write(log, "contains", c.writer.RecordContains(ctx, contrib.Collection, lang.Name, lang.Size)) {
			c.tracker.IncrementEdgesRecorded()
		}
	}
}

// write logs and swallows store failures; writes are idempotent and a
// rejected one never aborts the crawl
func (c *Crawler) write(log *logrus.Entry, what string, err error) bool {
	if err == nil {
		return true
	}
	log.Warnf("Failed to write %s: %v", what, err)
	return false
}
