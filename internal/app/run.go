package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shehryarbajwa/rentharvest/internal/bus"
	"github.com/shehryarbajwa/rentharvest/internal/config"
	"github.com/shehryarbajwa/rentharvest/internal/engine"
	"github.com/shehryarbajwa/rentharvest/internal/export"
	"github.com/shehryarbajwa/rentharvest/internal/store"
)

// RunOptions selects how a scraping run reaches its coordinator
type RunOptions struct {
	// BusURL is the websocket endpoint of a running server, e.g.
	// ws://localhost:8080/v1/bus. Empty runs an in-process coordinator.
	BusURL string
	// Resume continues the active session instead of starting a new one
	Resume bool
}

// Run drives one scraping session to completion and returns its result
func Run(ctx context.Context, cfg *config.Config, opts RunOptions, logger *slog.Logger) (*engine.Result, error) {
	b, cleanup, err := OpenBrowser(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}
	defer cleanup()

	var coord engine.Coordinator
	if opts.BusURL != "" {
		transport, err := bus.Dial(ctx, opts.BusURL, logger)
		if err != nil {
			return nil, err
		}
		client := bus.NewClient(transport)
		defer client.Close()

		// the server cannot see this process's Chrome, so tab events,
		// payment extraction and tab closing are done here
		relay := NewTabRelay(b, client, cfg.Coordinator, logger)
		watchCtx, cancel := context.WithCancel(ctx)
		defer relay.Wait()
		defer cancel()
		b.WatchTabs(watchCtx, relay.TabLoaded)
		coord = relayedClient{Client: client, relay: relay}
	} else {
		st, err := store.Open(ctx, cfg.Store.StoreOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		local := NewCoordinator(cfg, st, b, nil, logger)
		defer local.Close()
		if err := local.Restore(ctx); err != nil {
			logger.Warn("starting with an empty session", "err", err)
		}
		FeedTabs(ctx, b, local)
		client := bus.NewClient(bus.NewLocalTransport(local))
		defer client.Close()
		coord = client
	}

	classifier, err := engine.NewClassifier(cfg.Categories)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Options{
		Page:          b.Page(),
		Coordinator:   coord,
		Exporter:      export.NewFileExporter(cfg.Scrape.ExportDir, cfg.Site.Name, logger),
		Classifier:    classifier,
		Timing:        cfg.Timing,
		DetailPattern: cfg.Browser.DetailPattern,
		Logger:        logger,
	})

	if cfg.Site.StartURL != "" {
		if err := b.Navigate(ctx, cfg.Site.StartURL); err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.Site.StartURL, err)
		}
	}

	if opts.Resume {
		return eng.Resume(ctx)
	}
	return eng.Run(ctx, cfg.Scrape.Run(cfg.Site.Name))
}
