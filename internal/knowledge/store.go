// Package knowledge persists accepted fixes with their embeddings and
// answers nearest-neighbor queries over them.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacklau/sonarfix/internal/fix"
)

// Sentinel errors for store operations.
var (
	ErrNotFound          = errors.New("knowledge entry not found")
	ErrInvalidTopK       = errors.New("topK must be positive")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidEmbedding  = errors.New("invalid embedding")
	ErrMissingKey        = errors.New("entry has no issue number")
)

// Entry is one stored row. IssueNumber is the primary key.
type Entry struct {
	IssueNumber string
	Embedding   []float32
	Payload     []byte
}

// NewEntry serializes rec and pairs it with its embedding.
func NewEntry(rec fix.FixRecord, embedding []float32) (Entry, error) {
	payload, err := rec.MarshalPayload()
	if err != nil {
		return Entry{}, err
	}
	return Entry{IssueNumber: rec.IssueNumber, Embedding: embedding, Payload: payload}, nil
}

// Record decodes the entry payload.
func (e Entry) Record() (fix.FixRecord, error) {
	return fix.UnmarshalPayload(e.Payload)
}

// Hit is a search result.
type Hit struct {
	Record   fix.FixRecord
	Distance float64
}

// Store is a keyed, embedding-indexed collection of fix records.
//
// Upsert replaces both the embedding and the payload of an existing key in a
// single atomic write. Search returns at most topK hits ordered by ascending
// cosine distance with ties broken by ascending issue number; an empty store
// yields an empty slice.
type Store interface {
	Upsert(ctx context.Context, e Entry) error
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)
	Get(ctx context.Context, issueNumber string) (*Entry, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

func validateEntry(e Entry) error {
	if e.IssueNumber == "" {
		return ErrMissingKey
	}
	if err := validateVector(e.Embedding); err != nil {
		return fmt.Errorf("entry %s: %w", e.IssueNumber, err)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("entry %s has an empty payload", e.IssueNumber)
	}
	return nil
}

// checkQuery validates a search request. A query whose dimension differs
// from the store's is only an error when the store holds entries; against an
// empty store it reports empty instead.
func checkQuery(ctx context.Context, s Store, query []float32, topK, dims int) (empty bool, err error) {
	if topK <= 0 {
		return false, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if err := validateVector(query); err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	if dims == 0 || len(query) == dims {
		return false, nil
	}
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return true, nil
	}
	return false, fmt.Errorf("%w: query has %d dimensions, store has %d", ErrDimensionMismatch, len(query), dims)
}
