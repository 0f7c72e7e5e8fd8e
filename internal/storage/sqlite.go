package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all database operations. Every write is an idempotent
// upsert; edge writes whose endpoints are missing affect no rows.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Fan-out workers write concurrently; sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		login TEXT UNIQUE NOT NULL,
		pagerank REAL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS repos (
		repo_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS languages (
		language_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		color TEXT
	);

	CREATE TABLE IF NOT EXISTS contributes (
		user_id INTEGER NOT NULL,
		repo_id INTEGER NOT NULL,
		count INTEGER DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(user_id),
		FOREIGN KEY (repo_id) REFERENCES repos(repo_id),
		UNIQUE(user_id, repo_id)
	);

	CREATE TABLE IF NOT EXISTS contains (
		repo_id INTEGER NOT NULL,
		language_id INTEGER NOT NULL,
		size INTEGER DEFAULT 0,
		FOREIGN KEY (repo_id) REFERENCES repos(repo_id),
		FOREIGN KEY (language_id) REFERENCES languages(language_id),
		UNIQUE(repo_id, language_id)
	);

	CREATE TABLE IF NOT EXISTS knows (
		from_user_id INTEGER NOT NULL,
		to_user_id INTEGER NOT NULL,
		size INTEGER DEFAULT 0,
		UNIQUE(from_user_id, to_user_id)
	);

	CREATE TABLE IF NOT EXISTS codes_in (
		user_id INTEGER NOT NULL,
		language_id INTEGER NOT NULL,
		size INTEGER DEFAULT 0,
		UNIQUE(user_id, language_id)
	);

	CREATE INDEX IF NOT EXISTS idx_contributes_repo ON contributes(repo_id);
	CREATE INDEX IF NOT EXISTS idx_contains_language ON contains(language_id);
	CREATE INDEX IF NOT EXISTS idx_knows_to ON knows(to_user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertSubject inserts a user if missing
func (s *Storage) UpsertSubject(ctx context.Context, login string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (login) VALUES (?)
		ON CONFLICT(login) DO NOTHING
	`, login)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", login, err)
	}
	return nil
}

// UpsertCollection inserts a repository if missing
func (s *Storage) UpsertCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("failed to upsert repo %s: %w", name, err)
	}
	return nil
}

// UpsertLanguage inserts a language or refreshes its color
func (s *Storage) UpsertLanguage(ctx context.Context, name, color string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO languages (name, color) VALUES (?, NULLIF(?, ''))
		ON CONFLICT(name) DO UPDATE SET
			color = COALESCE(EXCLUDED.color, languages.color)
	`, name, color)
	if err != nil {
		return fmt.Errorf("failed to upsert language %s: %w", name, err)
	}
	return nil
}

// RecordContributes sets the user -> repo contribution count. Nothing is
// written unless both the user and the repo exist.
func (s *Storage) RecordContributes(ctx context.Context, login, collection string, count int) error {
	// The WHERE clause keeps sqlite from parsing ON CONFLICT as a join constraint
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contributes (user_id, repo_id, count)
		SELECT u.user_id, r.repo_id, ?
		FROM users u, repos r
		WHERE u.login = ? AND r.name = ?
		ON CONFLICT(user_id, repo_id) DO UPDATE SET
			count = EXCLUDED.count
	`, count, login, collection)
	if err != nil {
		return fmt.Errorf("failed to record contribution %s -> %s: %w", login, collection, err)
	}
	return nil
}

// RecordContains sets the repo -> language size. Nothing is written unless
// both endpoints exist.
func (s *Storage) RecordContains(ctx context.Context, collection, language string, size int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contains (repo_id, language_id, size)
		SELECT r.repo_id, l.language_id, ?
		FROM repos r, languages l
		WHERE r.name = ? AND l.name = ?
		ON CONFLICT(repo_id, language_id) DO UPDATE SET
			size = EXCLUDED.size
	`, size, collection, language)
	if err != nil {
		return fmt.Errorf("failed to record language %s -> %s: %w", collection, language, err)
	}
	return nil
}

// Contribution returns the recorded count of a user -> repo edge
// Returns (0, false, nil) if the edge does not exist
func (s *Storage) Contribution(ctx context.Context, login, collection string) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT c.count
		FROM contributes c
		JOIN users u ON u.user_id = c.user_id
		JOIN repos r ON r.repo_id = c.repo_id
		WHERE u.login = ? AND r.name = ?
	`, login, collection).Scan(&count)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get contribution: %w", err)
	}
	return count, true, nil
}

// Stats returns the row count of every table
func (s *Storage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"users", &st.Users},
		{"repos", &st.Repos},
		{"languages", &st.Languages},
		{"contributes", &st.Contributes},
		{"contains", &st.Contains},
		{"knows", &st.Knows},
		{"codes_in", &st.CodesIn},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return st, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
