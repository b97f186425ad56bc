package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokligence/boltstream/internal/classify"
	"github.com/tokligence/boltstream/internal/config"
	"github.com/tokligence/boltstream/internal/health"
	"github.com/tokligence/boltstream/internal/httpserver"
	"github.com/tokligence/boltstream/internal/ledger"
	"github.com/tokligence/boltstream/internal/logging"
	"github.com/tokligence/boltstream/internal/metrics"
	"github.com/tokligence/boltstream/internal/modelmeta"
	"github.com/tokligence/boltstream/internal/pipeline"
	"github.com/tokligence/boltstream/internal/ratelimit"
	"github.com/tokligence/boltstream/internal/render"
	"github.com/tokligence/boltstream/internal/theme"
	"github.com/tokligence/boltstream/internal/version"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configRoot)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if serveAddr != "" {
			cfg.HTTPAddress = serveAddr
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides http_address)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out, closer, err := logging.Output(cfg.LogFile, logging.DefaultMaxBytes)
	if err != nil {
		return fmt.Errorf("init rotating log: %w", err)
	}
	defer closer.Close()
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[boltd] ")

	log.Printf("boltd %s environment=%s", version.Info(), cfg.Environment)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	themes, err := theme.Load(cfg.ThemeFile, cfg.Theme, logging.New(out, "boltd/theme"))
	if err != nil {
		return fmt.Errorf("load theme: %w", err)
	}
	if err := themes.Watch(ctx); err != nil {
		log.Printf("theme watch disabled: %v", err)
	}

	patterns, err := classify.LoadPatterns(cfg.BotPatternsFile)
	if err != nil {
		return err
	}
	classifier, err := classify.New(patterns)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()

	meta := modelmeta.NewStore(modelmeta.Defaults...)
	if cfg.ModelMetaFile != "" {
		n, err := meta.Load(cfg.ModelMetaFile)
		if err != nil {
			return fmt.Errorf("load model metadata: %w", err)
		}
		log.Printf("model metadata: %d entries from %s", n, cfg.ModelMetaFile)
	}

	gen, err := buildGenerator(cfg, collector, log.Default())
	if err != nil {
		return err
	}

	store, err := openLedger(cfg, logging.New(out, "boltd/ledger"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	checker := health.New(health.Config{})
	if store != nil {
		defer store.Close()
		if p, ok := store.(ledger.Pinger); ok {
			checker.AddDatabase("ledger_db", p)
		}
	}

	shell, err := render.NewShellRenderer(cfg.Title)
	if err != nil {
		return err
	}

	popts := pipeline.Options{
		Classifier:  classifier,
		Logger:      logging.New(out, "boltd/stream"),
		Metrics:     collector,
		MaxDuration: cfg.StreamMaxDuration,
		ErrorMarker: cfg.StreamErrorMarker,
		Debug:       cfg.Debug(),
	}
	sopts := httpserver.Options{
		Generator: gen,
		Renderer:  shell,
		Theme:     themes,
		Metrics:   collector,
		Limiter:   ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		Health:    checker,
		ModelMeta: meta,
		Title:     cfg.Title,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Version:   version.Info(),
	}
	if store != nil {
		popts.Ledger = store
		sopts.Ledger = store
	}
	sopts.Pipeline = pipeline.New(popts)

	httpSrv := httpserver.New(sopts)
	httpSrv.SetLogger(cfg.LogLevel, logging.New(out, "boltd/http"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// streams run as long as the producer does
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("boltd listening on %s (model=%s generator=%s)", cfg.HTTPAddress, cfg.Model, gen.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = srv.Close()
	}
	return nil
}
