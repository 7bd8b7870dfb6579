package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/rentharvest/internal/store"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

const (
	// DefaultSecondaryPattern matches detail pages that carry payment data
	DefaultSecondaryPattern = `/offer/`

	// DefaultExtractDelay lets a detail page settle before it is read
	DefaultExtractDelay = 5 * time.Second

	defaultMaxExtractions = 4
	storeTimeout          = 5 * time.Second
)

// TabCloser closes browser tabs whose URL satisfies match
type TabCloser interface {
	CloseTabs(ctx context.Context, match func(url string) bool) (int, error)
}

// PaymentExtractor reads the payment breakdown from a loaded detail tab
type PaymentExtractor interface {
	ExtractPayment(ctx context.Context, tabID, url string) (models.PaymentData, error)
}

// Options configures a Coordinator. Zero values fall back to defaults.
type Options struct {
	Store             store.Store
	Resolver          PaymentResolver
	Tabs              TabCloser
	Extractor         PaymentExtractor
	SecondaryPattern  string
	IdentifierPattern string
	ExtractDelay      time.Duration
	MaxExtractions    int64
	Registerer        prometheus.Registerer
	Logger            *slog.Logger
}

// Coordinator owns the session, the payment cache and the most-recent tab
// pointer. Requests are applied one at a time.
type Coordinator struct {
	mu        sync.Mutex
	session   *models.Session
	cache     PaymentResolver
	recentTab *models.TabRecord

	store     store.Store
	tabs      TabCloser
	extractor PaymentExtractor
	secondary *regexp.Regexp
	delay     time.Duration
	slots     *semaphore.Weighted
	pending   sync.WaitGroup
	baseCtx   context.Context
	cancel    context.CancelFunc

	metrics *metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a coordinator with an inactive empty session
func New(opts Options) *Coordinator {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Resolver == nil {
		opts.Resolver = NewAliasResolver(opts.IdentifierPattern)
	}
	if opts.ExtractDelay <= 0 {
		opts.ExtractDelay = DefaultExtractDelay
	}
	if opts.MaxExtractions <= 0 {
		opts.MaxExtractions = defaultMaxExtractions
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	secondary, err := regexp.Compile(opts.SecondaryPattern)
	if opts.SecondaryPattern == "" || err != nil {
		if err != nil {
			opts.Logger.Warn("invalid secondary pattern, using default", "pattern", opts.SecondaryPattern, "err", err)
		}
		secondary = regexp.MustCompile(DefaultSecondaryPattern)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		session:   &models.Session{},
		cache:     opts.Resolver,
		store:     opts.Store,
		tabs:      opts.Tabs,
		extractor: opts.Extractor,
		secondary: secondary,
		delay:     opts.ExtractDelay,
		slots:     semaphore.NewWeighted(opts.MaxExtractions),
		baseCtx:   ctx,
		cancel:    cancel,
		metrics:   newMetrics(opts.Registerer),
		logger:    opts.Logger.With("component", "coordinator"),
		now:       time.Now,
	}
}

// Restore reloads the session persisted by a previous process
func (c *Coordinator) Restore(ctx context.Context) error {
	sess, err := c.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Info("no persisted session")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = sess
	c.metrics.sessionItems.Set(float64(len(sess.Items)))
	c.logger.Info("session restored", "run_id", sess.RunID, "active", sess.Active, "items", len(sess.Items))
	return nil
}

// Close cancels pending extractions and waits for them to return
func (c *Coordinator) Close() {
	c.cancel()
	c.pending.Wait()
}

// Start replaces the session with a fresh active one
func (c *Coordinator) Start(ctx context.Context, cfg models.Config) models.Ack {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.session = &models.Session{
		RunID:     uuid.New().String(),
		Active:    true,
		Config:    cfg.Normalize(),
		Items:     []models.ItemRecord{},
		SeenKeys:  []string{},
		StartedAt: now,
		UpdatedAt: now,
	}
	c.metrics.sessionItems.Set(0)
	c.logger.Info("session started",
		"run_id", c.session.RunID,
		"location", c.session.Config.Location,
		"durations", c.session.Config.Durations,
		"targets", c.session.Config.TargetModels)
	c.persist(ctx)
	return models.Ack{Success: true}
}

// GetState returns a copy of the session
func (c *Coordinator) GetState() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// Update replaces the accumulated items and seen keys. The last writer wins.
func (c *Coordinator) Update(ctx context.Context, req models.UpdateRequest) models.Ack {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.Items = append([]models.ItemRecord(nil), req.Items...)
	c.session.SeenKeys = append([]string(nil), req.SeenKeys...)
	c.session.CurrentItem = req.Current
	c.session.UpdatedAt = c.now()
	c.metrics.sessionItems.Set(float64(len(c.session.Items)))
	c.persist(ctx)
	return models.Ack{Success: true}
}

// StorePayment caches data under the URL and its identifier
func (c *Coordinator) StorePayment(url string, data models.PaymentData) models.Ack {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Store(url, data)
	c.logger.Debug("payment stored", "url", url, "pay_now", data.PayNow, "pay_at_pickup", data.PayAtPickup)
	return models.Ack{Success: true}
}

// GetPayment resolves cached payment data for url, empty when absent
func (c *Coordinator) GetPayment(url string) models.PaymentData {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, tier := c.cache.Lookup(url)
	c.metrics.paymentLookups.WithLabelValues(string(tier)).Inc()
	return data
}

// TrackTab records url as the most recently opened tab
func (c *Coordinator) TrackTab(url string) models.Ack {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentTab = &models.TabRecord{URL: url, Timestamp: c.now()}
	return models.Ack{Success: true}
}

// MostRecentTab returns the last tracked or loaded tab, nil when none
func (c *Coordinator) MostRecentTab() *models.TabRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recentTab == nil {
		return nil
	}
	tab := *c.recentTab
	return &tab
}

// CloseTabs closes every tab whose URL matches pattern, then clears the
// payment cache and the tab pointer. An empty pattern selects detail pages.
func (c *Coordinator) CloseTabs(ctx context.Context, pattern string) models.CloseTabsResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	re := c.secondary
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			c.logger.Warn("invalid close pattern", "pattern", pattern, "err", err)
			re = nil
		} else {
			re = compiled
		}
	}

	closed := 0
	if re != nil && c.tabs != nil {
		n, err := c.tabs.CloseTabs(ctx, re.MatchString)
		if err != nil {
			c.logger.Warn("closing tabs failed", "pattern", re.String(), "err", err)
		}
		closed = n
	}

	c.cache.Clear()
	c.recentTab = nil
	c.logger.Debug("tabs closed", "count", closed)
	return models.CloseTabsResponse{ClosedCount: closed}
}

// Stop deactivates the session and returns its items
func (c *Coordinator) Stop(ctx context.Context) models.StopResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasActive := c.session.Active
	c.session.Active = false
	c.session.CurrentItem = nil
	c.session.UpdatedAt = c.now()
	c.persist(ctx)
	if wasActive {
		c.logger.Info("session stopped", "run_id", c.session.RunID, "items", len(c.session.Items))
	}
	return models.StopResponse{Items: append([]models.ItemRecord{}, c.session.Items...)}
}

// TabLoaded handles a tab-lifecycle event from the browser host
func (c *Coordinator) TabLoaded(ev models.TabLoadedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentTab = &models.TabRecord{TabID: ev.TabID, URL: ev.URL, Timestamp: c.now()}
	if !c.session.Active || c.extractor == nil || !c.secondary.MatchString(ev.URL) {
		return
	}
	if !c.slots.TryAcquire(1) {
		c.logger.Warn("extraction skipped, too many in flight", "url", ev.URL)
		return
	}

	c.pending.Add(1)
	go c.extractAfterSettle(ev)
}

func (c *Coordinator) extractAfterSettle(ev models.TabLoadedEvent) {
	defer c.pending.Done()
	defer c.slots.Release(1)

	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-c.baseCtx.Done():
		return
	case <-timer.C:
	}

	data, err := c.extractor.ExtractPayment(c.baseCtx, ev.TabID, ev.URL)
	if err != nil {
		c.logger.Warn("payment extraction failed", "tab", ev.TabID, "url", ev.URL, "err", err)
		return
	}
	if data.Empty() {
		c.logger.Debug("no payment data on page", "url", ev.URL)
		return
	}
	c.StorePayment(ev.URL, data)
}

// persist writes the session; failures are logged and the in-memory state stays authoritative
func (c *Coordinator) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := c.store.Save(ctx, c.session); err != nil {
		c.logger.Error("failed to persist session", "err", err)
	}
}
