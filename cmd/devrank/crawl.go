package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alvmarrod/devrank/internal/config"
	"github.com/alvmarrod/devrank/internal/crawler"
	"github.com/alvmarrod/devrank/internal/credentials"
	"github.com/alvmarrod/devrank/internal/github"
	"github.com/alvmarrod/devrank/internal/memory"
	"github.com/alvmarrod/devrank/internal/metrics"
	"github.com/alvmarrod/devrank/internal/storage"
	"github.com/alvmarrod/devrank/internal/version"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	reasonCompleted = "completed"
	reasonSignal    = "signal"
	reasonFatal     = "fatal"
)

// NewCrawlCmd creates the crawl command
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [login] [hops]",
		Short: "Crawl the collaboration graph from a seed login",
		Long: `Crawl expands the seed login breadth first for the given number of hops,
then looks up every user discovered at the edge of the budget in parallel.

The seed and hop budget may also come from seed_login and max_hops in the
config file. A request that cannot be completed aborts the crawl with exit
status 1 after logging it.

Examples:
  # Two hops from octocat with tokens from the environment
  GH_KEY0=... GH_KEY1=... devrank crawl octocat 2

  # Share claims through redis and expose Prometheus metrics
  devrank crawl octocat 1 --redis localhost:6379 --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(2),
		RunE: runCrawlCmd,
	}

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().String("redis", "", "Keep the visited registry in redis at this address")
	cmd.Flags().Bool("buffer", false, "Buffer graph writes in memory and flush at the end")
	cmd.Flags().Bool("derive", false, "Build derived relations after a successful crawl")

	return cmd
}

// applyCrawlArgs overrides the seed and hop budget from positional arguments
func applyCrawlArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.SeedLogin = args[0]
	}
	if len(args) > 1 {
		hops, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("hops must be an integer: %w", err)
		}
		cfg.SetHops(hops)
	}
	return nil
}

func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.RedisAddr = v
	}
	if v, _ := cmd.Flags().GetBool("buffer"); v {
		cfg.BufferWrites = true
	}
	if v, _ := cmd.Flags().GetBool("derive"); v {
		cfg.Derive = true
	}
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlArgs(cfg, args); err != nil {
		return err
	}
	applyCrawlFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logrus.Infof("devrank v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: seed=%s, hops=%d, credentials=%d",
		cfg.SeedLogin, cfg.Hops(), len(cfg.Tokens))

	pool, err := credentials.NewPool(cfg.Tokens, cfg.RequestsPerSecond)
	if err != nil {
		return err
	}

	tracker := metrics.NewTracker()
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, tracker)
		defer stopMetrics()
	}

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	logrus.Infof("Database initialized: %s", cfg.DBPath)

	var (
		writer crawler.GraphWriter = store
		buffer *memory.Graph
	)
	if cfg.BufferWrites {
		buffer = memory.NewGraph()
		writer = buffer
		logrus.Info("Buffering graph writes in memory")
	}

	registry, closeRegistry, err := newRegistry(cmd.Context(), cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer closeRegistry()

	exec := github.NewExecutor(
		github.NewCollyTransport(cfg.APIURL, cfg.RequestTimeout()),
		pool,
		tracker,
		github.ExecutorOptions{
			MaxAttempts:    cfg.MaxAttempts,
			RetryMin:       cfg.RetryMin(),
			RetryMax:       cfg.RetryMax(),
			ThrottleMargin: cfg.ThrottleMargin(),
		},
	)
	c := crawler.NewCrawler(github.NewClient(exec), writer, registry, pool, tracker,
		crawler.Options{FanoutFactor: cfg.FanoutFactor})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopProgress := logProgress(tracker, 10*time.Second)
	crawlErr := c.Run(ctx, cfg.SeedLogin, cfg.Hops())
	stopProgress()

	reason := reasonCompleted
	switch {
	case crawlErr == nil:
	case ctx.Err() != nil && errors.Is(crawlErr, context.Canceled):
		reason = reasonSignal
		logrus.Warn("Crawl interrupted, shutting down")
	default:
		reason = reasonFatal
		logrus.Errorf("Crawl aborted: %v", crawlErr)
	}

	// Shutdown work must run even after a signal cancelled ctx
	if buffer != nil {
		logrus.Info("Flushing in-memory graph to database...")
		if err := buffer.Flush(context.Background(), store); err != nil {
			logrus.Errorf("Failed to flush memory graph: %v", err)
		}
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	if reason == reasonFatal {
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}
	if reason == reasonSignal {
		return nil
	}

	if cfg.Derive {
		if err := store.DeriveRelations(ctx); err != nil {
			return err
		}
		if err := printRanking(cmd, store, 10); err != nil {
			return err
		}
	}

	logrus.Info("Crawl complete")
	return nil
}

// newRegistry returns a redis-backed registry when addr is set, an in-process
// one otherwise
func newRegistry(ctx context.Context, addr string) (crawler.Registry, func(), error) {
	if addr == "" {
		return crawler.NewMemoryRegistry(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	logrus.Infof("Visited registry in redis at %s", addr)

	return crawler.NewRedisRegistry(client, ""), func() { client.Close() }, nil
}

func serveMetrics(addr string, tracker *metrics.Tracker) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", tracker.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logrus.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Warnf("Metrics server stopped: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func logProgress(tracker *metrics.Tracker, every time.Duration) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
