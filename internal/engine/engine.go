// Package engine drives one primary page through search, scan and extract
// rounds, one round per rental duration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

var (
	ErrNotSearchPage  = errors.New("page is neither a search form nor a results page")
	ErrResultsTimeout = errors.New("results page did not appear")
	ErrTabUnresolved  = errors.New("secondary tab url did not resolve")
	ErrNoSession      = errors.New("no active session to resume")

	errStopped = errors.New("session stopped")
)

// Candidate is one listing card visible on the results page
type Candidate struct {
	// ID identifies the card element so it is handled once per round
	ID        string
	FullName  string
	Company   string
	PriceText string
	DetailURL string
	HasDetail bool
}

// ScrollMetrics describes the scroll position of the results page
type ScrollMetrics struct {
	Height     int
	AtBoundary bool
}

// Page is the primary browsing context
type Page interface {
	IsSearchForm(ctx context.Context) (bool, error)
	IsResultsPage(ctx context.Context) (bool, error)
	FillLocation(ctx context.Context, location string) error
	SetDates(ctx context.Context, pickup, dropoff models.Date) error
	SubmitSearch(ctx context.Context) error
	Candidates(ctx context.Context) ([]Candidate, error)
	Metrics(ctx context.Context) (ScrollMetrics, error)
	ScrollBy(ctx context.Context, step int) error
	ScrollToTop(ctx context.Context) error
	// Paginate advances to the next results page, false when there is none
	Paginate(ctx context.Context) (bool, error)
	// OpenDetail activates the card's detail control; the host opens a new tab
	OpenDetail(ctx context.Context, c Candidate) error
}

// Coordinator is the engine's view of the session owner
type Coordinator interface {
	Start(ctx context.Context, cfg models.Config) error
	GetState(ctx context.Context) (models.Snapshot, error)
	Update(ctx context.Context, req models.UpdateRequest) error
	GetPayment(ctx context.Context, url string) (models.PaymentData, error)
	TrackTab(ctx context.Context, url string) error
	MostRecentTab(ctx context.Context) (*models.TabRecord, error)
	CloseTabs(ctx context.Context, pattern string) (int, error)
	Stop(ctx context.Context) ([]models.ItemRecord, error)
}

// Exporter writes the final item list
type Exporter interface {
	Export(ctx context.Context, items []models.ItemRecord) error
}

type Options struct {
	Page        Page
	Coordinator Coordinator
	Exporter    Exporter
	Classifier  *Classifier
	Timing      Timing
	// DetailPattern selects secondary tabs to close, empty for the coordinator default
	DetailPattern string
	Logger        *slog.Logger
	Now           func() time.Time
}

// RoundResult summarizes one rental-duration round
type RoundResult struct {
	Days   int
	Pickup models.Date
	Added  int
	Err    error
}

// Result summarizes a whole run
type Result struct {
	Items   []models.ItemRecord
	Rounds  []RoundResult
	Stopped bool
}

type Engine struct {
	page       Page
	coord      Coordinator
	exporter   Exporter
	classifier *Classifier
	timing     Timing
	detailPat  string
	logger     *slog.Logger
	now        func() time.Time
}

func New(opts Options) *Engine {
	if opts.Classifier == nil {
		opts.Classifier, _ = NewClassifier(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		page:       opts.Page,
		coord:      opts.Coordinator,
		exporter:   opts.Exporter,
		classifier: opts.Classifier,
		timing:     opts.Timing.withDefaults(),
		detailPat:  opts.DetailPattern,
		logger:     opts.Logger.With("component", "engine"),
		now:        opts.Now,
	}
}

// runState is the engine's accumulation for the session in progress
type runState struct {
	cfg      models.Config
	items    []models.ItemRecord
	seen     map[string]struct{}
	seenKeys []string
}

func newRunState(cfg models.Config, items []models.ItemRecord, keys []string) *runState {
	st := &runState{
		cfg:   cfg,
		items: append([]models.ItemRecord{}, items...),
		seen:  make(map[string]struct{}, len(keys)),
	}
	for _, k := range keys {
		st.markSeen(k)
	}
	return st
}

func (s *runState) hasSeen(key string) bool {
	_, ok := s.seen[key]
	return ok
}

func (s *runState) markSeen(key string) {
	if s.hasSeen(key) {
		return
	}
	s.seen[key] = struct{}{}
	s.seenKeys = append(s.seenKeys, key)
}

func (s *runState) update(current *models.ItemRecord) models.UpdateRequest {
	return models.UpdateRequest{
		Items:    append([]models.ItemRecord{}, s.items...),
		SeenKeys: append([]string{}, s.seenKeys...),
		Current:  current,
	}
}

// Run starts a new session for cfg and drives every round to completion
func (e *Engine) Run(ctx context.Context, cfg models.Config) (*Result, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.coord.Start(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	e.logger.Info("session started", "location", cfg.Location, "durations", cfg.Durations, "targets", cfg.TargetModels, "max_per_date", cfg.MaxPerDate)
	return e.drive(ctx, newRunState(cfg, nil, nil))
}

// Resume continues the active session held by the coordinator, keeping its
// accumulated items and seen keys.
func (e *Engine) Resume(ctx context.Context) (*Result, error) {
	snap, err := e.coord.GetState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !snap.Active {
		return nil, ErrNoSession
	}
	e.logger.Info("resuming session", "items", len(snap.Items), "seen", len(snap.SeenKeys))
	return e.drive(ctx, newRunState(snap.Config, snap.Items, snap.SeenKeys))
}

func (e *Engine) drive(ctx context.Context, st *runState) (*Result, error) {
	res := &Result{}

	for i, days := range st.cfg.Durations {
		if i > 0 {
			active, err := e.active(ctx)
			if err != nil {
				return nil, err
			}
			if !active {
				res.Stopped = true
				break
			}
		}

		rr := e.round(ctx, st, i+1, days)
		res.Rounds = append(res.Rounds, rr)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(rr.Err, errStopped) {
			res.Stopped = true
			break
		}
	}

	if res.Stopped {
		e.logger.Info("session stopped externally", "items", len(st.items))
		res.Items = st.items
	} else {
		items, err := e.finish(ctx, st)
		if err != nil {
			return nil, err
		}
		res.Items = items
	}

	if e.exporter != nil {
		if err := e.exporter.Export(ctx, res.Items); err != nil {
			return res, fmt.Errorf("failed to export items: %w", err)
		}
	}
	return res, nil
}

// finish lets a late extraction land, then stops the session
func (e *Engine) finish(ctx context.Context, st *runState) ([]models.ItemRecord, error) {
	e.logger.Info("waiting for final extraction", "wait", e.timing.FinalExtractionWait)
	if err := sleep(ctx, e.timing.FinalExtractionWait); err != nil {
		return nil, err
	}
	if _, err := e.coord.CloseTabs(ctx, e.detailPat); err != nil {
		e.logger.Warn("failed to close tabs", "err", err)
	}
	items, err := e.coord.Stop(ctx)
	if err != nil {
		e.logger.Warn("stop failed, using local items", "err", err)
		return st.items, nil
	}
	e.logger.Info("all rounds complete", "items", len(items))
	return items, nil
}

func (e *Engine) active(ctx context.Context) (bool, error) {
	snap, err := e.coord.GetState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.logger.Warn("failed to read session state", "err", err)
		return true, nil
	}
	return snap.Active, nil
}
