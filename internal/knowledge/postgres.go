package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

const defaultPostgresTable = "sonar_fixes"

// PostgresStore keeps entries in a pgvector table and lets the database rank
// them with the cosine distance operator.
type PostgresStore struct {
	db    *sql.DB
	table string
	dims  int
}

// OpenPostgres connects to dsn, enables the vector extension and creates the
// table when missing. dims is required because the column type is vector(dims).
func OpenPostgres(ctx context.Context, dsn, table string, dims int) (*PostgresStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("postgres store requires dimensions > 0, got %d", dims)
	}
	if table == "" {
		table = defaultPostgresTable
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{db: db, table: pq.QuoteIdentifier(table), dims: dims}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			issue_number TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dims),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}
	return tx.Commit()
}

// Upsert inserts e or replaces the row with the same issue number in one
// statement.
func (s *PostgresStore) Upsert(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if len(e.Embedding) != s.dims {
		return fmt.Errorf("entry %s: %w: got %d, store has %d", e.IssueNumber, ErrDimensionMismatch, len(e.Embedding), s.dims)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (issue_number, embedding, payload, updated_at)
		VALUES ($1, $2::vector, $3::jsonb, now())
		ON CONFLICT (issue_number) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`, s.table),
		e.IssueNumber, vectorLiteral(e.Embedding), string(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.IssueNumber, describePQError(err))
	}
	return nil
}

// Search orders rows by the <=> cosine distance operator.
func (s *PostgresStore) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	empty, err := checkQuery(ctx, s, query, topK, s.dims)
	if err != nil {
		return nil, err
	}
	if empty {
		return []Hit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT payload, embedding <=> $1::vector AS distance
		FROM %s
		ORDER BY distance, issue_number COLLATE "C"
		LIMIT $2`, s.table),
		vectorLiteral(query), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", describePQError(err))
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var (
			payload []byte
			dist    float64
		)
		if err := rows.Scan(&payload, &dist); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		rec, err := Entry{Payload: payload}.Record()
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Record: rec, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return topHits(hits, topK), nil
}

// Get returns the entry stored under issueNumber.
func (s *PostgresStore) Get(ctx context.Context, issueNumber string) (*Entry, error) {
	var (
		vec     string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT embedding::text, payload FROM %s WHERE issue_number = $1`, s.table), issueNumber,
	).Scan(&vec, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, issueNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", issueNumber, describePQError(err))
	}
	embedding, err := parseVectorLiteral(vec)
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", issueNumber, err)
	}
	return &Entry{IssueNumber: issueNumber, Embedding: embedding, Payload: payload}, nil
}

// Count returns the number of stored entries.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", describePQError(err))
	}
	return n, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)

// vectorLiteral renders v in pgvector's text form, e.g. [1,0.5,-2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// describePQError adds the server's detail line to driver errors.
func describePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Detail != "" {
		return fmt.Errorf("%w (%s)", err, pqErr.Detail)
	}
	return err
}
