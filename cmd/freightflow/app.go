package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"freightflow/internal/attention"
	"freightflow/internal/confidence"
	"freightflow/internal/config"
	"freightflow/internal/extract"
	"freightflow/internal/llm"
	"freightflow/internal/logging"
	"freightflow/internal/memory"
	"freightflow/internal/normalize"
	"freightflow/internal/pattern"
	"freightflow/internal/processor"
	"freightflow/internal/rules"
	"freightflow/internal/shipment"
	"freightflow/internal/store"
)

// app bundles the booted pipeline. Every command that touches the
// database goes through here so wiring stays in one place.
type app struct {
	cfg      *config.Config
	store    *store.Store
	matcher  *pattern.Matcher
	provider *rules.Provider
	proc     *processor.Processor
	engine   *attention.Engine
	registry *prometheus.Registry
}

// openApp loads configuration, opens the store, and wires the processor.
// mail and pdf may be nil for commands that never fetch messages.
func openApp(ctx context.Context, mail *fileMailSource) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	enums, err := st.ListEnumMappings(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading enum mappings: %w", err)
	}
	norm := normalize.New(enums)

	var ladder *llm.Ladder
	if !cfg.AllowNoLLM {
		ladder, err = llm.NewLadder(cfg)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	var mem *memory.Service
	if cfg.GeminiAPIKey != "" {
		embedder, err := memory.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, "")
		if err != nil {
			logging.L(logging.CategoryBoot).Warnw("embedding client unavailable, memory disabled", "error", err)
		} else {
			mem = memory.New(embedder, st)
		}
	}

	scorer, err := confidence.New(st)
	if err != nil {
		st.Close()
		return nil, err
	}

	matcher := pattern.NewMatcher(st, cfg.CacheTTL)
	provider := rules.New(st, cfg.CacheTTL)
	registry := prometheus.NewRegistry()

	a := &app{
		cfg:      cfg,
		store:    st,
		matcher:  matcher,
		provider: provider,
		engine:   attention.New(attention.DefaultWeights()),
		registry: registry,
	}
	deps := processor.Deps{
		Store:      st,
		Matcher:    matcher,
		Rules:      provider,
		Normalizer: norm,
		Extractor:  extract.New(norm, cfg.YearMin, cfg.YearMax),
		Ladder:     ladder,
		Scorer:     scorer,
		Linker:     shipment.New(st, provider),
		Memory:     mem,
		Pdf:        &textExtractor{},
		Metrics:    processor.NewMetrics(registry),
		RetryCap:   cfg.RetryCap,
	}
	if mail != nil {
		deps.Mail = mail
	}
	a.proc = processor.New(deps)
	return a, nil
}

func (a *app) close() {
	a.matcher.Drain()
	if err := a.store.Close(); err != nil {
		logging.L(logging.CategoryBoot).Warnw("store close failed", "error", err)
	}
}

// workerCount resolves the --workers flag against configuration.
func (a *app) workerCount() int {
	if workers > 0 {
		return workers
	}
	return a.cfg.Concurrency
}
