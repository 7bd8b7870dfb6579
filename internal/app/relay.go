package app

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/rentharvest/internal/bus"
	"github.com/shehryarbajwa/rentharvest/internal/config"
	"github.com/shehryarbajwa/rentharvest/internal/coordinator"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// TabHost is the Chrome the runner drives, seen from the coordinator side
type TabHost interface {
	coordinator.TabCloser
	coordinator.PaymentExtractor
}

// TabSink receives tab events and payment data on behalf of a coordinator
type TabSink interface {
	TabLoaded(ctx context.Context, tabID, url string) error
	StorePayment(ctx context.Context, url string, data models.PaymentData) error
}

// TabRelay does the coordinator's browser work in the runner process when
// the coordinator lives behind the bus. Tab loads are forwarded as events and
// detail pages are read locally, then pushed back with storePayment.
type TabRelay struct {
	host      TabHost
	sink      TabSink
	secondary *regexp.Regexp
	delay     time.Duration
	slots     *semaphore.Weighted
	pending   sync.WaitGroup
	logger    *slog.Logger
}

func NewTabRelay(host TabHost, sink TabSink, cfg config.CoordinatorConfig, logger *slog.Logger) *TabRelay {
	if logger == nil {
		logger = slog.Default()
	}
	secondary, err := regexp.Compile(cfg.SecondaryPattern)
	if cfg.SecondaryPattern == "" || err != nil {
		secondary = regexp.MustCompile(coordinator.DefaultSecondaryPattern)
	}
	delay := cfg.ExtractDelay
	if delay <= 0 {
		delay = coordinator.DefaultExtractDelay
	}
	slots := cfg.MaxExtractions
	if slots <= 0 {
		slots = 1
	}
	return &TabRelay{
		host:      host,
		sink:      sink,
		secondary: secondary,
		delay:     delay,
		slots:     semaphore.NewWeighted(slots),
		logger:    logger.With("component", "tab-relay"),
	}
}

// TabLoaded has the shape of browser.TabLoadedFunc
func (r *TabRelay) TabLoaded(ctx context.Context, tabID, url string) {
	if ctx.Err() != nil {
		return
	}
	if err := r.sink.TabLoaded(ctx, tabID, url); err != nil {
		r.logger.Warn("failed to forward tab", "tab", tabID, "url", url, "err", err)
	}
	if !r.secondary.MatchString(url) {
		return
	}
	if !r.slots.TryAcquire(1) {
		r.logger.Warn("extraction skipped, too many in flight", "url", url)
		return
	}
	r.pending.Add(1)
	go r.extract(ctx, tabID, url)
}

func (r *TabRelay) extract(ctx context.Context, tabID, url string) {
	defer r.pending.Done()
	defer r.slots.Release(1)

	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	data, err := r.host.ExtractPayment(ctx, tabID, url)
	if err != nil {
		r.logger.Warn("payment extraction failed", "tab", tabID, "url", url, "err", err)
		return
	}
	if data.Empty() {
		r.logger.Debug("no payment data on page", "url", url)
		return
	}
	if err := r.sink.StorePayment(ctx, url, data); err != nil {
		r.logger.Warn("failed to store payment", "url", url, "err", err)
	}
}

// CloseTabs closes local tabs matching pattern; empty selects detail pages
func (r *TabRelay) CloseTabs(ctx context.Context, pattern string) int {
	re := r.secondary
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			r.logger.Warn("invalid close pattern", "pattern", pattern, "err", err)
			return 0
		}
		re = compiled
	}
	n, err := r.host.CloseTabs(ctx, re.MatchString)
	if err != nil {
		r.logger.Warn("closing tabs failed", "pattern", re.String(), "err", err)
	}
	return n
}

// Wait blocks until in-flight extractions finish
func (r *TabRelay) Wait() {
	r.pending.Wait()
}

// relayedClient is a bus client whose tab closing also reaches the runner's Chrome
type relayedClient struct {
	*bus.Client
	relay *TabRelay
}

func (c relayedClient) CloseTabs(ctx context.Context, pattern string) (int, error) {
	remote, err := c.Client.CloseTabs(ctx, pattern)
	if err != nil {
		return 0, err
	}
	return remote + c.relay.CloseTabs(ctx, pattern), nil
}
