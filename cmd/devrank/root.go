package main

import (
	"fmt"

	"github.com/alvmarrod/devrank/internal/config"
	"github.com/alvmarrod/devrank/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devrank",
		Short: "Crawl and rank the GitHub collaboration graph",
		Long: `devrank walks the GitHub collaboration network (users, the repositories
they contribute to and the languages of those repositories) from a seed login
and stores what it finds in a sqlite graph.

API tokens are read from the config file, GH_KEY0..GH_KEY9 or GITHUB_TOKENS.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "config.json", "Configuration file path (optional)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("db", "", "sqlite database path")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewDeriveCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devrank version %s\n", version.Version)
		},
	}
}

// loadConfig reads the config file named by --config and applies the
// persistent flag overrides, then configures logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}

	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}
