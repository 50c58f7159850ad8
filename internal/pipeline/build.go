package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/decide"
	"github.com/ppiankov/resubmit/internal/ledger"
	"github.com/ppiankov/resubmit/internal/mapper"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/resolve"
	"github.com/ppiankov/resubmit/internal/rules"
	"github.com/ppiankov/resubmit/internal/score"
	"github.com/ppiankov/resubmit/internal/store"
)

// Build loads the domain configuration named by cfg, opens the configured
// stores and returns a ready pipeline. Configuration problems are reported
// before any store is opened.
func Build(ctx context.Context, cfg model.Config, log zerolog.Logger) (*Pipeline, error) {
	deps, opts, err := loadConfig(cfg)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseConfig, Err: err}
	}

	if err := openStores(ctx, cfg.Store, &deps, log); err != nil {
		return nil, &PipelineError{Phase: PhaseStore, Err: err}
	}

	log.Info().
		Strs("sources", deps.Mapper.Registry().Sources()).
		Str("ruleset_version", deps.Ruleset.Version).
		Str("policy_version", cfg.Policy.Version).
		Str("model_version", deps.Scorer.ModelVersion()).
		Str("store", cfg.Store.Backend).
		Int("workers", opts.Workers).
		Msg("pipeline ready")

	return New(deps, opts, log)
}

func loadConfig(cfg model.Config) (Deps, Options, error) {
	var deps Deps
	var opts Options

	registry, err := mapper.LoadDir(cfg.Input.MappingDir)
	if err != nil {
		return deps, opts, err
	}
	deps.Mapper = mapper.New(registry)

	rs, err := rules.Load(cfg.Input.RulesFile)
	if err != nil {
		return deps, opts, err
	}
	deps.Ruleset = rs

	if deps.Resolver, err = resolve.New(cfg.Precedence); err != nil {
		return deps, opts, err
	}
	if deps.Orchestrator, err = decide.New(cfg.Policy, rs.IDs(), rs.Version); err != nil {
		return deps, opts, err
	}
	if deps.Scorer, err = score.New(cfg); err != nil {
		return deps, opts, err
	}

	opts.Workers = cfg.Concurrency.Workers
	opts.ScoreTimeout = cfg.Scorer.Timeout
	if cfg.Input.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", cfg.Input.AsOf)
		if err != nil {
			return deps, opts, fmt.Errorf("%w: as_of %q: %v", model.ErrConfig, cfg.Input.AsOf, err)
		}
		opts.AsOf = asOf
	}
	return deps, opts, nil
}

// openStores opens the record, quarantine and audit logs plus the decision
// ledger. The postgres backend keeps decisions in the database and the other
// logs in the state directory.
func openStores(ctx context.Context, cfg model.StoreConfig, deps *Deps, log zerolog.Logger) (err error) {
	var opened []interface{ Close() error }
	defer func() {
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
		}
	}()

	switch cfg.Backend {
	case "memory":
		deps.Records = store.NewMemoryRecordStore()
		deps.Quarantine = &store.MemoryQuarantine{}
		deps.Audit = &store.MemoryAudit{}

	case "jsonl", "postgres", "":
		if cfg.Dir == "" {
			return fmt.Errorf("%w: store.dir required", model.ErrConfig)
		}
		records, err := store.NewJSONLRecordStore(cfg.Dir)
		if err != nil {
			return err
		}
		opened = append(opened, records)
		deps.Records = records

		quarantine, err := store.NewJSONLQuarantine(cfg.Dir)
		if err != nil {
			return err
		}
		opened = append(opened, quarantine)
		deps.Quarantine = quarantine

		audit, err := store.NewJSONLAudit(cfg.Dir)
		if err != nil {
			return err
		}
		opened = append(opened, audit)
		deps.Audit = audit

	default:
		return fmt.Errorf("%w: unknown store backend %q (supported: jsonl, postgres, memory)", model.ErrConfig, cfg.Backend)
	}

	l, err := ledger.OpenConfigured(ctx, cfg, log)
	if err != nil {
		return err
	}
	deps.Ledger = l
	return nil
}

// Close closes the ledger and every log the pipeline writes
func (p *Pipeline) Close() error {
	return errors.Join(
		p.deps.Ledger.Close(),
		p.deps.Records.Close(),
		p.deps.Quarantine.Close(),
		p.deps.Audit.Close(),
	)
}
