package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
)

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "json":
		return NewJSONFile(cfg.Path), nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
