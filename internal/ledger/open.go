package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/model"
)

// OpenStore opens the decision store selected by cfg.Backend
func OpenStore(ctx context.Context, cfg model.StoreConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "jsonl", "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("%w: store.dir required", model.ErrConfig)
		}
		return NewJSONLStore(cfg.Dir)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: store.dsn required for postgres", model.ErrConfig)
		}
		return NewPostgresStore(ctx, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q (supported: jsonl, postgres, memory)", model.ErrConfig, cfg.Backend)
	}
}

// OpenConfigured opens the configured store and replays it into a ledger
func OpenConfigured(ctx context.Context, cfg model.StoreConfig, log zerolog.Logger) (*Ledger, error) {
	s, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	l, err := Open(ctx, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return l, nil
}
