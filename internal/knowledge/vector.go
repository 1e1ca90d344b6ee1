package knowledge

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// EncodeEmbedding serializes a float32 slice to a little-endian BLOB.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding deserializes a BLOB written by EncodeEmbedding.
func DecodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}

	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// CosineSimilarity computes the cosine similarity between two vectors in a
// single pass. Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64

	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / math.Sqrt(normA*normB), nil
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// validateVector rejects vectors that have no direction.
func validateVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	var norm float64
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: non-finite component at %d", ErrInvalidEmbedding, i)
		}
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}

// dimensionGuard pins the store dimension. A zero value adopts the
// dimension of the first vector it admits.
type dimensionGuard struct {
	mu sync.Mutex
	n  int
}

func (g *dimensionGuard) admit(v []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == 0 {
		g.n = len(v)
		return nil
	}
	if len(v) != g.n {
		return fmt.Errorf("%w: got %d, store has %d", ErrDimensionMismatch, len(v), g.n)
	}
	return nil
}

func (g *dimensionGuard) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
