// Package app wires configuration into running components for both binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/rentharvest/internal/api"
	"github.com/shehryarbajwa/rentharvest/internal/browser"
	"github.com/shehryarbajwa/rentharvest/internal/bus"
	"github.com/shehryarbajwa/rentharvest/internal/config"
	"github.com/shehryarbajwa/rentharvest/internal/coordinator"
	"github.com/shehryarbajwa/rentharvest/internal/ratelimit"
	"github.com/shehryarbajwa/rentharvest/internal/store"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

const limiterIdle = time.Hour

// OpenBrowser connects to Chrome as configured. With browser.docker set a
// browserless container is launched first; the returned cleanup stops it.
func OpenBrowser(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*browser.Browser, func(), error) {
	opts := browser.Options{
		RemoteURL:     cfg.Browser.RemoteURL,
		Headless:      cfg.Browser.Headless,
		UserAgent:     cfg.Browser.UserAgent,
		Profile:       cfg.Site,
		DetailPattern: cfg.Browser.DetailPattern,
		Logger:        logger,
	}
	if !cfg.Browser.Docker {
		b, err := browser.Connect(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}

	pool, err := browser.NewPool(cfg.Browser.Image, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Browser.ProfileArchive != "" {
		pool.KeepProfile(cfg.Browser.ProfileArchive)
	}
	if err := pool.EnsureImage(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ensure chrome image: %w", err)
	}
	inst, err := pool.Launch(ctx, uuid.NewString())
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("chrome container launched", "devtools", inst.DevtoolsURL)

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.Release(stopCtx, inst); err != nil {
			logger.Warn("failed to stop chrome container", "err", err)
		}
		pool.Close()
	}

	opts.RemoteURL = inst.DevtoolsURL
	b, err := browser.Connect(ctx, opts)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return b, func() { b.Close(); stop() }, nil
}

// NewCoordinator builds a coordinator over st. A nil browser leaves tab
// closing and payment extraction unwired.
func NewCoordinator(cfg *config.Config, st store.Store, b *browser.Browser, reg prometheus.Registerer, logger *slog.Logger) *coordinator.Coordinator {
	opts := coordinator.Options{
		Store:             st,
		SecondaryPattern:  cfg.Coordinator.SecondaryPattern,
		IdentifierPattern: cfg.Coordinator.IdentifierPattern,
		ExtractDelay:      cfg.Coordinator.ExtractDelay,
		MaxExtractions:    cfg.Coordinator.MaxExtractions,
		Registerer:        reg,
		Logger:            logger,
	}
	if b != nil {
		opts.Tabs = b
		opts.Extractor = b
	}
	return coordinator.New(opts)
}

// FeedTabs forwards secondary-tab loads from b into the coordinator
func FeedTabs(ctx context.Context, b *browser.Browser, coord *coordinator.Coordinator) {
	b.WatchTabs(ctx, func(_ context.Context, tabID, url string) {
		coord.TabLoaded(models.TabLoadedEvent{TabID: tabID, URL: url})
	})
}

// Serve runs the coordinator daemon until ctx is cancelled. Chrome is only
// attached when the config names a shared browser (remote_url or docker), as
// a private local Chrome would never see the runner's tabs.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(ctx, cfg.Store.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	logger.Info("store opened", "kind", cfg.Store.Kind)

	var b *browser.Browser
	if cfg.Browser.RemoteURL != "" || cfg.Browser.Docker {
		var cleanup func()
		b, cleanup, err = OpenBrowser(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open browser: %w", err)
		}
		defer cleanup()
	} else {
		logger.Warn("no shared browser configured, tab closing and payment extraction are disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coord := NewCoordinator(cfg, st, b, reg, logger)
	defer coord.Close()
	if err := coord.Restore(ctx); err != nil {
		logger.Warn("starting with an empty session", "err", err)
	}
	if b != nil {
		FeedTabs(ctx, b, coord)
	}

	limiter := ratelimit.NewLimiter(cfg.Server.RequestsPerHour, cfg.Server.Burst)
	handler := api.NewHandler(coord, logger)
	router := handler.SetupRoutes(bus.NewServer(coord, logger), limiter, reg)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(limiterIdle)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Prune(limiterIdle); n > 0 {
					logger.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	})
	return g.Wait()
}
