package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/adapter/anthropic"
	"github.com/tokligence/boltstream/internal/adapter/fallback"
	"github.com/tokligence/boltstream/internal/adapter/loopback"
	adapterrouter "github.com/tokligence/boltstream/internal/adapter/router"
	"github.com/tokligence/boltstream/internal/config"
	"github.com/tokligence/boltstream/internal/ledger"
	"github.com/tokligence/boltstream/internal/ledger/async"
	"github.com/tokligence/boltstream/internal/ledger/postgres"
	"github.com/tokligence/boltstream/internal/ledger/sqlite"
	"github.com/tokligence/boltstream/internal/metrics"
)

// buildGenerator registers the available generators, each instrumented, behind
// a model router. The default is cfg.Generator; auto falls back to loopback
// when no API key is set.
func buildGenerator(cfg config.Config, collector *metrics.Collector, logger *log.Logger) (adapter.Generator, error) {
	r := adapterrouter.New()
	if err := r.Register("loopback", adapter.Instrument(loopback.New(), collector)); err != nil {
		return nil, err
	}

	defaultName := "loopback"
	if cfg.AnthropicAPIKey != "" && cfg.Generator != "loopback" {
		anth, err := anthropic.New(anthropic.Config{
			APIKey:        cfg.AnthropicAPIKey,
			BaseURL:       cfg.AnthropicBaseURL,
			Version:       cfg.AnthropicVersion,
			Model:         cfg.Model,
			MaxTokens:     cfg.MaxTokens,
			HeaderTimeout: cfg.UpstreamTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic generator: %w", err)
		}
		var gen adapter.Generator = anth
		if cfg.UpstreamRetries > 0 {
			gen, err = fallback.New(fallback.Config{
				Generators: []adapter.Generator{anth},
				RetryCount: cfg.UpstreamRetries,
			})
			if err != nil {
				return nil, err
			}
		}
		if err := r.Register("anthropic", adapter.Instrument(gen, collector)); err != nil {
			return nil, err
		}
		defaultName = "anthropic"
	} else if cfg.Generator == "anthropic" {
		return nil, errors.New("generator=anthropic requires an anthropic api key")
	} else if cfg.Generator != "loopback" && logger != nil {
		logger.Printf("[WARN] no anthropic api key configured; chat answers come from the loopback echo generator (set generator=loopback to silence)")
	}

	if err := r.SetFallback(defaultName); err != nil {
		return nil, err
	}
	for pattern, name := range cfg.Routes {
		if err := r.Route(pattern, name); err != nil {
			if logger != nil {
				logger.Printf("route rule %q=>%q rejected: %v", pattern, name, err)
			}
		}
	}
	if logger != nil {
		logger.Printf("routes configured: %v (default %s)", r.Routes(), defaultName)
	}
	return r, nil
}

// openLedger opens the usage ledger named by cfg.LedgerPath behind an async
// batch writer. It returns nil when the ledger is disabled.
func openLedger(cfg config.Config, logger *log.Logger) (ledger.Store, error) {
	if cfg.LedgerDisabled() {
		return nil, nil
	}
	var (
		store ledger.Store
		err   error
	)
	if cfg.LedgerIsPostgres() {
		store, err = postgres.New(cfg.LedgerPath, postgres.PoolConfig{
			MaxOpen:     10,
			MaxIdle:     5,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		})
	} else {
		store, err = sqlite.New(cfg.LedgerPath)
	}
	if err != nil {
		return nil, err
	}
	return async.New(store, async.Config{Logger: logger}), nil
}
