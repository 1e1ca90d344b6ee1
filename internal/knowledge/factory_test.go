package knowledge

import (
	"context"
	"testing"
)

func TestOpen_Defaults(t *testing.T) {
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected sqlite store by default, got %T", s)
	}
}

func TestOpen_Chromem(t *testing.T) {
	s, err := Open(context.Background(), Config{Type: BackendChromem, Dimensions: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*ChromemStore); !ok {
		t.Errorf("expected chromem store, got %T", s)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	if _, err := Open(context.Background(), Config{Type: "redis"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
