package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 1

// SQLiteStore keeps entries in a single SQLite table and ranks them in Go.
type SQLiteStore struct {
	db   *sql.DB
	dims dimensionGuard
}

// OpenSQLite opens (or creates) a SQLite database at path and runs
// migrations. Use ":memory:" for an in-memory database. A dims of 0 adopts
// the dimension of the stored rows, or of the first upsert.
func OpenSQLite(ctx context.Context, path string, dims int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}

	var dsn string
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	} else {
		dsn = ":memory:"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes writers and keeps :memory: a single database.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStore{db: sqlDB}
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	stored, err := s.storedDimensions(ctx)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	switch {
	case stored != 0 && dims != 0 && stored != dims:
		sqlDB.Close()
		return nil, fmt.Errorf("%w: configured %d, database has %d", ErrDimensionMismatch, dims, stored)
	case stored != 0:
		s.dims.n = stored
	default:
		s.dims.n = dims
	}

	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= sqliteSchemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sonar_fixes (
		issue_number TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating sonar_fixes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) storedDimensions(ctx context.Context) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM sonar_fixes LIMIT 1`).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading stored dimensions: %w", err)
	}
	return dims, nil
}

// Upsert inserts e or replaces the row with the same issue number.
func (s *SQLiteStore) Upsert(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if err := s.dims.admit(e.Embedding); err != nil {
		return fmt.Errorf("entry %s: %w", e.IssueNumber, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sonar_fixes (issue_number, embedding, dimensions, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(issue_number) DO UPDATE SET
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		e.IssueNumber, EncodeEmbedding(e.Embedding), len(e.Embedding), string(e.Payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.IssueNumber, err)
	}
	return nil
}

// Search scans every row in one query and ranks by cosine distance.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	empty, err := checkQuery(ctx, s, query, topK, s.dims.get())
	if err != nil {
		return nil, err
	}
	if empty {
		return []Hit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT issue_number, embedding, payload FROM sonar_fixes`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var (
			key     string
			blob    []byte
			payload string
		)
		if err := rows.Scan(&key, &blob, &payload); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		dist, err := CosineDistance(query, DecodeEmbedding(blob))
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		rec, err := Entry{Payload: []byte(payload)}.Record()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		hits = append(hits, Hit{Record: rec, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return topHits(hits, topK), nil
}

// Get returns the entry stored under issueNumber.
func (s *SQLiteStore) Get(ctx context.Context, issueNumber string) (*Entry, error) {
	var (
		blob    []byte
		payload string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding, payload FROM sonar_fixes WHERE issue_number = ?`, issueNumber,
	).Scan(&blob, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, issueNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", issueNumber, err)
	}
	return &Entry{IssueNumber: issueNumber, Embedding: DecodeEmbedding(blob), Payload: []byte(payload)}, nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sonar_fixes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
