package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/jacklau/sonarfix/internal/fix"
)

const testDims = 3

// openFunc returns an empty store with testDims dimensions.
type openFunc func(t *testing.T) Store

func testRecord(id string) fix.FixRecord {
	return fix.FixRecord{
		IssueNumber:   id,
		TypeOfIssue:   fix.CategoryBug,
		FromLine:      1,
		ToLine:        2,
		OriginalCode:  "a",
		FixedCode:     "b",
		Justification: "because " + id,
		Confidence:    0.5,
	}
}

func mustEntry(t *testing.T, rec fix.FixRecord, vec []float32) Entry {
	t.Helper()
	e, err := NewEntry(rec, vec)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return e
}

func mustUpsert(t *testing.T, s Store, id string, vec []float32) {
	t.Helper()
	if err := s.Upsert(context.Background(), mustEntry(t, testRecord(id), vec)); err != nil {
		t.Fatalf("Upsert(%s): %v", id, err)
	}
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Record.IssueNumber
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// runStoreSuite exercises the Store contract shared by every backend.
func runStoreSuite(t *testing.T, open openFunc) {
	ctx := context.Background()

	t.Run("EmptySearch", func(t *testing.T) {
		s := open(t)
		hits, err := s.Search(ctx, []float32{1, 0, 0}, 3)
		if err != nil {
			t.Fatalf("Search on empty store returned error: %v", err)
		}
		if hits == nil || len(hits) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", hits)
		}
	})

	t.Run("EmptySearchOtherDimension", func(t *testing.T) {
		s := open(t)
		hits, err := s.Search(ctx, []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("Search on empty store returned error: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("expected no hits, got %d", len(hits))
		}
	})

	t.Run("ScenarioD", func(t *testing.T) {
		s := open(t)
		mustUpsert(t, s, "S2111", []float32{1, 0, 0})
		mustUpsert(t, s, "S1234", []float32{0, 1, 0})

		hits, err := s.Search(ctx, []float32{0.1, 1, 0}, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got := hitIDs(hits); !equalIDs(got, []string{"S1234"}) {
			t.Errorf("expected [S1234], got %v", got)
		}
	})

	t.Run("OrderingAndTieBreak", func(t *testing.T) {
		s := open(t)
		mustUpsert(t, s, "S300", []float32{1, 0, 0})
		mustUpsert(t, s, "S100", []float32{0, 1, 0})
		mustUpsert(t, s, "S200", []float32{1, 0, 0})
		mustUpsert(t, s, "S400", []float32{1, 1, 0})

		hits, err := s.Search(ctx, []float32{1, 0, 0}, 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got := hitIDs(hits); !equalIDs(got, []string{"S200", "S300", "S400", "S100"}) {
			t.Errorf("unexpected order %v", got)
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Distance < hits[i-1].Distance {
				t.Errorf("distances not non-decreasing at %d: %v", i, hits)
			}
		}
		if math.Abs(hits[0].Distance) > 1e-5 {
			t.Errorf("expected ~0 distance for identical direction, got %v", hits[0].Distance)
		}
	})

	t.Run("TieBreakByteOrder", func(t *testing.T) {
		s := open(t)
		mustUpsert(t, s, "s100", []float32{1, 0, 0})
		mustUpsert(t, s, "S200", []float32{1, 0, 0})

		hits, err := s.Search(ctx, []float32{1, 0, 0}, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got := hitIDs(hits); !equalIDs(got, []string{"S200"}) {
			t.Errorf("expected [S200], got %v", got)
		}
	})

	t.Run("TieBreakPastCandidateWindow", func(t *testing.T) {
		s := open(t)
		for i := 9; i >= 1; i-- {
			mustUpsert(t, s, fmt.Sprintf("S%d", i), []float32{0, 0, 1})
		}
		mustUpsert(t, s, "S0", []float32{1, 0, 0})

		hits, err := s.Search(ctx, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got := hitIDs(hits); !equalIDs(got, []string{"S0", "S1"}) {
			t.Errorf("expected [S0 S1], got %v", got)
		}
	})

	t.Run("TopKBound", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 5; i++ {
			mustUpsert(t, s, fmt.Sprintf("S%d", i), []float32{1, float32(i), 0})
		}
		for _, k := range []int{1, 3, 5, 8} {
			hits, err := s.Search(ctx, []float32{1, 0, 0}, k)
			if err != nil {
				t.Fatalf("Search(k=%d): %v", k, err)
			}
			want := k
			if want > 5 {
				want = 5
			}
			if len(hits) != want {
				t.Errorf("k=%d: expected %d hits, got %d", k, want, len(hits))
			}
		}
	})

	t.Run("InvalidTopK", func(t *testing.T) {
		s := open(t)
		if _, err := s.Search(ctx, []float32{1, 0, 0}, 0); !errors.Is(err, ErrInvalidTopK) {
			t.Errorf("expected ErrInvalidTopK, got %v", err)
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		s := open(t)
		mustUpsert(t, s, "S2111", []float32{1, 0, 0})

		updated := testRecord("S2111")
		updated.FixedCode = "c"
		if err := s.Upsert(ctx, mustEntry(t, updated, []float32{0, 0, 1})); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		n, err := s.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 entry after re-upsert, got %d", n)
		}

		got, err := s.Get(ctx, "S2111")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		rec, err := got.Record()
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if rec.FixedCode != "c" {
			t.Errorf("expected replaced payload, got %q", rec.FixedCode)
		}
		if got.Embedding[2] <= 0 || got.Embedding[0] != 0 {
			t.Errorf("expected replaced embedding, got %v", got.Embedding)
		}

		hits, err := s.Search(ctx, []float32{0, 0, 1}, 5)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 1 || hits[0].Record.FixedCode != "c" {
			t.Errorf("search should see only the replacement, got %+v", hits)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(ctx, "S0000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		s := open(t)
		mustUpsert(t, s, "S1", []float32{1, 0, 0})
		err := s.Upsert(ctx, mustEntry(t, testRecord("S2"), []float32{1, 0}))
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch on upsert, got %v", err)
		}
		if _, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch on search, got %v", err)
		}
	})

	t.Run("InvalidEmbedding", func(t *testing.T) {
		s := open(t)
		err := s.Upsert(ctx, mustEntry(t, testRecord("S1"), []float32{0, 0, 0}))
		if !errors.Is(err, ErrInvalidEmbedding) {
			t.Errorf("expected ErrInvalidEmbedding, got %v", err)
		}
		if err := s.Upsert(ctx, Entry{Embedding: []float32{1, 0, 0}, Payload: []byte("{}")}); !errors.Is(err, ErrMissingKey) {
			t.Errorf("expected ErrMissingKey, got %v", err)
		}
	})

	t.Run("ConcurrentUpsertSameKey", func(t *testing.T) {
		s := open(t)
		const writers = 12

		var wg sync.WaitGroup
		errs := make(chan error, writers*2)
		for i := 1; i <= writers; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				rec := testRecord("S2111")
				rec.FromLine = i
				rec.ToLine = i
				e, err := NewEntry(rec, []float32{1, float32(i), 0})
				if err != nil {
					errs <- err
					return
				}
				if err := s.Upsert(ctx, e); err != nil {
					errs <- err
				}
			}(i)
			go func() {
				defer wg.Done()
				if _, err := s.Search(ctx, []float32{1, 1, 0}, 3); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent operation failed: %v", err)
		}

		n, err := s.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected exactly 1 row, got %d", n)
		}

		got, err := s.Get(ctx, "S2111")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		rec, err := got.Record()
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		// The embedding and payload must come from the same write.
		ratio := float64(got.Embedding[1] / got.Embedding[0])
		if math.Abs(ratio-float64(rec.FromLine)) > 1e-3 {
			t.Errorf("embedding %v does not belong to payload with fromLine %d", got.Embedding, rec.FromLine)
		}
	})
}
