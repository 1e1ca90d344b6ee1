package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultQdrantCollection = "sonar_fixes"
	defaultQdrantPort       = 6334
	defaultQdrantOverfetch  = 8

	qdrantIssueKey  = "issue_number"
	qdrantRecordKey = "record"
)

// pointNamespace derives stable point IDs from issue numbers.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sonarfix/knowledge"))

// PointID maps an issue number to its Qdrant point ID.
func PointID(issueNumber string) string {
	return uuid.NewSHA1(pointNamespace, []byte(issueNumber)).String()
}

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
	// Overfetch is the number of extra points requested beyond topK so that
	// equal-distance neighbors at the cut are re-ranked by issue number. When
	// every extra point still ties with the cut, the window is doubled until
	// the distance changes or the collection is exhausted.
	Overfetch int
}

// QdrantStore keeps entries as points in a cosine-distance collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dims       int
	overfetch  int
}

// OpenQdrant connects over gRPC and creates the collection when missing.
func OpenQdrant(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant store requires dimensions > 0, got %d", cfg.Dimensions)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultQdrantPort
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultQdrantCollection
	}
	if cfg.Overfetch <= 0 {
		cfg.Overfetch = defaultQdrantOverfetch
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dimensions,
		overfetch:  cfg.Overfetch,
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert writes e as a single point and waits until it is applied.
func (s *QdrantStore) Upsert(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if len(e.Embedding) != s.dims {
		return fmt.Errorf("entry %s: %w: got %d, store has %d", e.IssueNumber, ErrDimensionMismatch, len(e.Embedding), s.dims)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(PointID(e.IssueNumber)),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				qdrantIssueKey:  e.IssueNumber,
				qdrantRecordKey: string(e.Payload),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.IssueNumber, err)
	}
	return nil
}

// Search runs an exact query for topK plus overfetch points and re-ranks.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	empty, err := checkQuery(ctx, s, query, topK, s.dims)
	if err != nil {
		return nil, err
	}
	if empty {
		return []Hit{}, nil
	}

	limit := topK + s.overfetch
	var points []*qdrant.ScoredPoint
	for {
		points, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(query...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
		})
		if err != nil {
			return nil, fmt.Errorf("querying collection %s: %w", s.collection, err)
		}
		// Ties at the cut may continue past the window.
		if len(points) < limit || points[len(points)-1].GetScore() != points[topK-1].GetScore() {
			break
		}
		limit *= 2
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		raw := p.GetPayload()[qdrantRecordKey].GetStringValue()
		rec, err := Entry{Payload: []byte(raw)}.Record()
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Record: rec, Distance: 1 - float64(p.GetScore())})
	}
	return topHits(hits, topK), nil
}

// Get returns the entry stored under issueNumber.
func (s *QdrantStore) Get(ctx context.Context, issueNumber string) (*Entry, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(issueNumber))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", issueNumber, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, issueNumber)
	}
	p := points[0]
	return &Entry{
		IssueNumber: p.GetPayload()[qdrantIssueKey].GetStringValue(),
		Embedding:   p.GetVectors().GetVector().GetData(),
		Payload:     []byte(p.GetPayload()[qdrantRecordKey].GetStringValue()),
	}, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*QdrantStore)(nil)
