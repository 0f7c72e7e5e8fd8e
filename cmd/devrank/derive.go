package main

import (
	"fmt"

	"github.com/alvmarrod/devrank/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDeriveCmd creates the derive command
func NewDeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Build knows/codes_in relations and pagerank from a crawled graph",
		Long: `Derive rebuilds the relations computed from crawled edges:
- knows: users sharing a repository, weighted by the other user's contributions
- codes_in: users to languages, weighted by contributions to repositories using it
- pagerank: 20 iterations over knows with damping 0.85`,
		Args: cobra.NoArgs,
		RunE: runDeriveCmd,
	}

	cmd.Flags().IntP("top", "n", 10, "Number of top ranked users to print")

	return cmd
}

func runDeriveCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	logrus.Infof("Database opened: %s", cfg.DBPath)

	if err := store.DeriveRelations(cmd.Context()); err != nil {
		return err
	}
	return printRanking(cmd, store, top)
}

func printRanking(cmd *cobra.Command, store *storage.Storage, n int) error {
	if n <= 0 {
		return nil
	}
	users, err := store.TopRanked(cmd.Context(), n)
	if err != nil {
		return err
	}
	for i, u := range users {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d. %-39s %.4f\n", i+1, u.Login, u.PageRank)
	}
	return nil
}
