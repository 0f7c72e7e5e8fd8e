package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	pageRankIterations = 20
	pageRankDamping    = 0.85
)

// DeriveRelations rebuilds the knows and codes_in tables from the crawled
// edges, then recomputes pagerank over knows
func (s *Storage) DeriveRelations(ctx context.Context) error {
	start := time.Now()
	logrus.Info("Building derived relations...")

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// knows(a -> b).size sums b's contributions over every repo they share
		steps := []struct {
			name  string
			query string
		}{
			{"clear knows", `DELETE FROM knows`},
			{"build knows", `
				INSERT INTO knows (from_user_id, to_user_id, size)
				SELECT a.user_id, b.user_id, SUM(b.count)
				FROM contributes a
				JOIN contributes b ON a.repo_id = b.repo_id AND a.user_id <> b.user_id
				GROUP BY a.user_id, b.user_id`},
			{"clear codes_in", `DELETE FROM codes_in`},
			{"build codes_in", `
				INSERT INTO codes_in (user_id, language_id, size)
				SELECT c.user_id, k.language_id, SUM(c.count)
				FROM contributes c
				JOIN contains k ON k.repo_id = c.repo_id
				GROUP BY c.user_id, k.language_id`},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query); err != nil {
				return fmt.Errorf("failed to %s: %w", step.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.ComputePageRank(ctx); err != nil {
		return err
	}

	logrus.Infof("Derived relations built in %v", time.Since(start))
	return nil
}

// ComputePageRank ranks users over the knows graph weighted by size and
// stores the score in users.pagerank
func (s *Storage) ComputePageRank(ctx context.Context) error {
	logins, err := s.logins(ctx)
	if err != nil {
		return err
	}
	edges, err := s.KnowsEdges(ctx)
	if err != nil {
		return err
	}

	ranks := PageRank(logins, edges, pageRankIterations, pageRankDamping)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE users SET pagerank = ? WHERE login = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare pagerank update: %w", err)
		}
		defer stmt.Close()

		for login, rank := range ranks {
			if _, err := stmt.ExecContext(ctx, rank, login); err != nil {
				return fmt.Errorf("failed to store pagerank for %s: %w", login, err)
			}
		}
		return nil
	})
}

// KnowsEdges returns the derived knows relation
func (s *Storage) KnowsEdges(ctx context.Context) ([]WeightedEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.login, b.login, k.size
		FROM knows k
		JOIN users a ON a.user_id = k.from_user_id
		JOIN users b ON b.user_id = k.to_user_id
		ORDER BY a.login, b.login
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load knows: %w", err)
	}
	defer rows.Close()

	var edges []WeightedEdge
	for rows.Next() {
		var e WeightedEdge
		if err := rows.Scan(&e.From, &e.To, &e.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan knows: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knows: %w", err)
	}
	return edges, nil
}

// CodesIn returns the derived language weight of a user
// Returns (0, false, nil) if the user never contributed in that language
func (s *Storage) CodesIn(ctx context.Context, login, language string) (int, bool, error) {
	var size int
	err := s.db.QueryRowContext(ctx, `
		SELECT c.size
		FROM codes_in c
		JOIN users u ON u.user_id = c.user_id
		JOIN languages l ON l.language_id = c.language_id
		WHERE u.login = ? AND l.name = ?
	`, login, language).Scan(&size)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get codes_in: %w", err)
	}
	return size, true, nil
}

// TopRanked returns the n users with the highest pagerank
func (s *Storage) TopRanked(ctx context.Context, n int) ([]RankedUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT login, pagerank FROM users
		ORDER BY pagerank DESC, login ASC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranking: %w", err)
	}
	defer rows.Close()

	var users []RankedUser
	for rows.Next() {
		var u RankedUser
		if err := rows.Scan(&u.Login, &u.PageRank); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranking: %w", err)
	}
	return users, nil
}

func (s *Storage) logins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT login FROM users ORDER BY login`)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	var logins []string
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		logins = append(logins, login)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return logins, nil
}

func (s *Storage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
