package crawler

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// WorkerCount sizes the fan-out: floor(factor * credentials), at least one,
// never more workers than terminal subjects
func WorkerCount(credentials int, factor float64, terminals int) int {
	k := int(math.Floor(float64(credentials) * factor))
	if k < 1 {
		k = 1
	}
	if terminals > 0 && k > terminals {
		k = terminals
	}
	return k
}

// Dispatch expands every terminal subject with a zero budget. The set is
// split into stride shards, one per worker, and worker w issues all of its
// requests with credential w modulo the pool size. The first fatal error
// cancels the remaining workers.
func (c *Crawler) Dispatch(ctx context.Context) error {
	total := c.terminal.Len()
	if total == 0 {
		logrus.Info("No terminal subjects, skipping fan-out")
		return nil
	}

	k := WorkerCount(c.creds.Size(), c.fanoutFactor, total)
	shards := c.terminal.Shard(k)
	logrus.Infof("Fan-out starting: %d terminal subjects across %d workers", total, k)

	g, gctx := errgroup.WithContext(ctx)
	for w, shard := range shards {
		cred := w % c.creds.Size()
		g.Go(func() error {
			return c.drainShard(gctx, w, cred, shard)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logrus.Info("Fan-out complete")
	return nil
}

func (c *Crawler) drainShard(ctx context.Context, worker, cred int, shard []string) error {
	log := logrus.WithFields(logrus.Fields{"worker": worker, "credential": cred})
	log.Debugf("Worker starting with %d subjects", len(shard))

	for i, login := range shard {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.expandSubject(ctx, login, 0, cred); err != nil {
			return fmt.Errorf("fan-out worker %d: %w", worker, err)
		}
		if (i+1)%100 == 0 {
			log.Infof("Progress: %d/%d subjects", i+1, len(shard))
		}
	}

	log.Debug("Worker finished")
	return nil
}
