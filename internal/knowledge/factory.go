package knowledge

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendChromem  = "chromem"
	BackendQdrant   = "qdrant"
)

// Config selects and configures a Store backend.
type Config struct {
	Type       string
	Path       string // sqlite file or chromem directory
	DSN        string // postgres
	Table      string // postgres
	Host       string // qdrant
	Port       int    // qdrant
	APIKey     string // qdrant
	UseTLS     bool   // qdrant
	Collection string // chromem, qdrant
	Dimensions int
	Overfetch  int  // qdrant
	Compress   bool // chromem
}

// Open creates the Store named by cfg.Type. An empty type selects sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", BackendSQLite:
		return OpenSQLite(ctx, cfg.Path, cfg.Dimensions)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN, cfg.Table, cfg.Dimensions)
	case BackendChromem:
		return OpenChromem(cfg.Path, cfg.Collection, cfg.Dimensions, cfg.Compress)
	case BackendQdrant:
		return OpenQdrant(ctx, QdrantConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			APIKey:     cfg.APIKey,
			UseTLS:     cfg.UseTLS,
			Collection: cfg.Collection,
			Dimensions: cfg.Dimensions,
			Overfetch:  cfg.Overfetch,
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %q", cfg.Type)
	}
}
