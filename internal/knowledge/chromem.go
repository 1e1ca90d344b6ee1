package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

const (
	defaultChromemCollection = "sonar_fixes"
	chromemIssueKey          = "issue_number"
)

var errChromemNoEmbedder = errors.New("chromem collection has no embedding function; entries carry their own vectors")

// ChromemStore keeps entries in an embedded chromem-go collection. Document
// IDs are issue numbers, so adding a document with an existing ID replaces it.
type ChromemStore struct {
	db   *chromem.DB
	col  *chromem.Collection
	dims dimensionGuard
}

// OpenChromem opens a persistent collection under path, or an in-memory one
// when path is empty.
func OpenChromem(path, collection string, dims int, compress bool) (*ChromemStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("chromem store requires dimensions > 0, got %d", dims)
	}
	if collection == "" {
		collection = defaultChromemCollection
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	meta := map[string]string{"dimensions": strconv.Itoa(dims)}
	col, err := db.GetOrCreateCollection(collection, meta, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	s := &ChromemStore{db: db, col: col}
	s.dims.n = dims
	return s, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errChromemNoEmbedder
}

// Upsert adds e to the collection, replacing any document with the same ID.
func (s *ChromemStore) Upsert(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if err := s.dims.admit(e.Embedding); err != nil {
		return fmt.Errorf("entry %s: %w", e.IssueNumber, err)
	}

	embedding := make([]float32, len(e.Embedding))
	copy(embedding, e.Embedding)

	err := s.col.AddDocument(ctx, chromem.Document{
		ID:        e.IssueNumber,
		Metadata:  map[string]string{chromemIssueKey: e.IssueNumber},
		Embedding: embedding,
		Content:   string(e.Payload),
	})
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.IssueNumber, err)
	}
	return nil
}

// Search queries the whole collection and re-ranks in Go, so ties are
// broken the same way as in every other backend.
func (s *ChromemStore) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	empty, err := checkQuery(ctx, s, query, topK, s.dims.get())
	if err != nil {
		return nil, err
	}
	if empty {
		return []Hit{}, nil
	}

	// chromem requires nResults <= document count.
	n := s.col.Count()
	if n == 0 {
		return []Hit{}, nil
	}

	results, err := s.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		rec, err := Entry{Payload: []byte(r.Content)}.Record()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", r.ID, err)
		}
		dist, err := CosineDistance(query, r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", r.ID, err)
		}
		hits = append(hits, Hit{Record: rec, Distance: dist})
	}
	return topHits(hits, topK), nil
}

// Get returns the entry stored under issueNumber. chromem keeps embeddings
// normalized, so the returned vector has unit length.
func (s *ChromemStore) Get(ctx context.Context, issueNumber string) (*Entry, error) {
	if issueNumber == "" {
		return nil, errors.New("issue number is empty")
	}
	doc, err := s.col.GetByID(ctx, issueNumber)
	if err != nil {
		// chromem reports a missing ID only through its message.
		if strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, issueNumber)
		}
		return nil, fmt.Errorf("getting %s: %w", issueNumber, err)
	}
	return &Entry{IssueNumber: doc.ID, Embedding: doc.Embedding, Payload: []byte(doc.Content)}, nil
}

// Count returns the number of documents in the collection.
func (s *ChromemStore) Count(context.Context) (int, error) {
	return s.col.Count(), nil
}

// Close is a no-op; persistent collections are written on every change.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
