package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/rentharvest/internal/bus"
	"github.com/shehryarbajwa/rentharvest/internal/coordinator"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type fakePage struct {
	form      bool
	submitted bool
	noResults bool
	notSearch bool

	// pages of results; Paginate advances through them
	pages [][]Candidate
	cur   int

	candidateCalls int
	scrolls        int
	paginations    int
	opened         []Candidate
	dates          [][2]models.Date
	onOpen         func(c Candidate)
	// render rewrites a page before it is returned, keyed by call number
	render func(call int, cands []Candidate) []Candidate
}

func (p *fakePage) IsSearchForm(context.Context) (bool, error) {
	return p.form && !p.submitted && !p.notSearch, nil
}

func (p *fakePage) IsResultsPage(context.Context) (bool, error) {
	return p.submitted && !p.noResults && !p.notSearch, nil
}

func (p *fakePage) FillLocation(context.Context, string) error { return nil }

func (p *fakePage) SetDates(_ context.Context, pickup, dropoff models.Date) error {
	p.dates = append(p.dates, [2]models.Date{pickup, dropoff})
	return nil
}

func (p *fakePage) SubmitSearch(context.Context) error {
	p.submitted = true
	p.cur = 0
	return nil
}

func (p *fakePage) Candidates(context.Context) ([]Candidate, error) {
	p.candidateCalls++
	if len(p.pages) == 0 {
		return nil, nil
	}
	if p.render != nil {
		return p.render(p.candidateCalls, p.pages[p.cur]), nil
	}
	return p.pages[p.cur], nil
}

func (p *fakePage) Metrics(context.Context) (ScrollMetrics, error) {
	return ScrollMetrics{Height: 2000 + p.cur, AtBoundary: true}, nil
}

func (p *fakePage) ScrollBy(context.Context, int) error {
	p.scrolls++
	return nil
}

func (p *fakePage) ScrollToTop(context.Context) error { return nil }

func (p *fakePage) Paginate(context.Context) (bool, error) {
	if p.cur+1 >= len(p.pages) {
		return false, nil
	}
	p.cur++
	p.paginations++
	return true, nil
}

func (p *fakePage) OpenDetail(_ context.Context, c Candidate) error {
	p.opened = append(p.opened, c)
	if p.onOpen != nil {
		p.onOpen(c)
	}
	return nil
}

// recordingCoord counts calls made by the engine on top of a real coordinator
type recordingCoord struct {
	Coordinator
	payments int
	tabs     int
	stops    int
	onUpdate func(req models.UpdateRequest)
}

func (r *recordingCoord) GetPayment(ctx context.Context, url string) (models.PaymentData, error) {
	r.payments++
	return r.Coordinator.GetPayment(ctx, url)
}

func (r *recordingCoord) MostRecentTab(ctx context.Context) (*models.TabRecord, error) {
	r.tabs++
	return r.Coordinator.MostRecentTab(ctx)
}

func (r *recordingCoord) Stop(ctx context.Context) ([]models.ItemRecord, error) {
	r.stops++
	return r.Coordinator.Stop(ctx)
}

func (r *recordingCoord) Update(ctx context.Context, req models.UpdateRequest) error {
	err := r.Coordinator.Update(ctx, req)
	if r.onUpdate != nil {
		r.onUpdate(req)
	}
	return err
}

type captureExporter struct {
	items []models.ItemRecord
	calls int
}

func (c *captureExporter) Export(_ context.Context, items []models.ItemRecord) error {
	c.calls++
	c.items = items
	return nil
}

func fastTiming() Timing {
	return Timing{
		ScanInterval:        time.Millisecond,
		ScrollStep:          300,
		MaxIdleRounds:       3,
		ResultsTimeout:      30 * time.Millisecond,
		ResultsPoll:         time.Millisecond,
		TabPollAttempts:     3,
		TabPollInterval:     time.Millisecond,
		PaymentPollInterval: time.Millisecond,
		PaymentPollAttempts: 4,
	}
}

type harness struct {
	coord    *coordinator.Coordinator
	rec      *recordingCoord
	page     *fakePage
	exporter *captureExporter
	engine   *Engine
}

func newHarness(t *testing.T, page *fakePage) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := coordinator.New(coordinator.Options{Logger: logger})
	t.Cleanup(coord.Close)

	rec := &recordingCoord{Coordinator: bus.NewClient(bus.NewLocalTransport(coord))}
	exp := &captureExporter{}
	eng := New(Options{
		Page:        page,
		Coordinator: rec,
		Exporter:    exp,
		Timing:      fastTiming(),
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	})
	return &harness{coord: coord, rec: rec, page: page, exporter: exp, engine: eng}
}

func card(id, name, company, price string) Candidate {
	return Candidate{ID: id, FullName: name, Company: company, PriceText: price}
}

func TestDuplicateCardsAreAddedOnce(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Kia Rio or similar", "Avis", "$100"),
		card("2", "Kia Rio or similar", "Avis", "$100.00"),
		card("3", "Kia Rio or similar", "Hertz", "$100"),
	}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Location: "Perth", Durations: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	state := h.coord.GetState()
	require.Len(t, state.Items, 2)
	require.LessOrEqual(t, len(state.SeenKeys), len(state.Items))
	require.False(t, state.Active)
	require.Equal(t, 1, h.exporter.calls)
}

func TestCapEnforcementStopsRound(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Kia Rio", "Avis", "$100"),
		card("2", "Kia Rio", "Avis", "$110"),
		card("3", "Kia Rio", "Avis", "$120"),
		card("4", "Toyota Corolla", "Avis", "$90"),
	}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{
		Location:     "Perth",
		Durations:    []int{3},
		TargetModels: []string{"Kia Rio"},
		MaxPerDate:   2,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, 100.0, res.Items[0].Price)
	require.Equal(t, 110.0, res.Items[1].Price)
	require.Equal(t, "kiario", res.Items[0].MatchedModel)
	require.Equal(t, 2, res.Rounds[0].Added)
	require.Zero(t, page.scrolls)
}

func TestCardWithLatePriceIsRetried(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Kia Rio", "Avis", "$100"),
		card("2", "Toyota Corolla", "Budget", "$90"),
	}}}
	page.render = func(call int, cands []Candidate) []Candidate {
		if call > 1 {
			return cands
		}
		out := append([]Candidate(nil), cands...)
		out[1].PriceText = ""
		return out
	}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "Toyota Corolla", res.Items[1].FullName)
	require.Equal(t, 90.0, res.Items[1].Price)
	require.Greater(t, page.candidateCalls, 1)
}

func TestCapPerCategoryWithoutTargets(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Kia Rio", "Avis", "$100"),
		card("2", "Kia Picanto", "Avis", "$110"),
		card("3", "Toyota Corolla", "Avis", "$90"),
	}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}, MaxPerDate: 1})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "EDAR", res.Items[0].CategoryCode)
	require.Equal(t, "SEDAN", res.Items[1].CategoryCode)
}

func TestIdleTermination(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Ford Ranger", "Avis", "$100"),
	}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{
		Durations:    []int{1},
		TargetModels: []string{"corolla"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, fastTiming().MaxIdleRounds, page.candidateCalls)
}

func TestPaginationBeforeGivingUp(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{
		{card("1", "Kia Rio", "Avis", "$100")},
		{card("2", "Kia Rio", "Budget", "$95")},
	}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, 1, page.paginations)
	require.Equal(t, "Budget", res.Items[1].Company)
}

func TestTwoRoundsWithDifferentDates(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "ModelX Sport", "Avis", "$100"),
		card("2", "ModelX Sport", "Avis", "$120"),
	}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{
		Location:     "Perth",
		Durations:    []int{1, 2},
		TargetModels: []string{"modelX"},
		MaxPerDate:   1,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	first, second := res.Items[0], res.Items[1]
	require.Equal(t, 100.0, first.Price)
	require.Equal(t, "2026-10-20", first.PickupDate.String())
	require.Equal(t, "2026-10-21", first.DropoffDate.String())
	require.Equal(t, 100.0, first.AvgDailyPrice)

	require.Equal(t, 100.0, second.Price)
	require.Equal(t, "2026-10-22", second.DropoffDate.String())
	require.Equal(t, 2, second.RentalDays)
	require.Equal(t, 50.0, second.AvgDailyPrice)
	require.NotEqual(t, first.UniqueKey, second.UniqueKey)

	require.Len(t, page.dates, 2)
}

func TestHandoffEnrichesItem(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{{
		ID: "1", FullName: "Kia Rio", Company: "Avis", PriceText: "$100",
		DetailURL: "https://site/offer/abc123", HasDetail: true,
	}}}}
	h := newHarness(t, page)
	page.onOpen = func(Candidate) {
		h.coord.TabLoaded(models.TabLoadedEvent{TabID: "T1", URL: "https://site/offer/abc123?tok=9"})
		h.coord.StorePayment("https://site/offer/abc123?tok=9", models.PaymentData{PayNow: "$50", PayAtPickup: "$10"})
	}

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, "$50", res.Items[0].PayNow)
	require.Equal(t, "$10", res.Items[0].PayAtPickup)
	require.Len(t, page.opened, 1)
	require.Nil(t, h.coord.MostRecentTab())
}

func TestExhaustedHandoffKeepsItem(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{{
		ID: "1", FullName: "Kia Rio", Company: "Avis", PriceText: "$100",
		DetailURL: "https://site/offer/nodata", HasDetail: true,
	}}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, "", res.Items[0].PayNow)
	require.Equal(t, "", res.Items[0].PayAtPickup)
	require.Equal(t, "https://site/offer/nodata", res.Items[0].DetailURL)
	require.Equal(t, fastTiming().PaymentPollAttempts, h.rec.payments)
	require.NoError(t, res.Rounds[0].Err)
}

func TestUnresolvedTabKeepsItem(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{{
		ID: "1", FullName: "Kia Rio", Company: "Avis", PriceText: "$100", HasDetail: true,
	}}}}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.False(t, res.Items[0].HasPayment())
	require.Equal(t, fastTiming().TabPollAttempts, h.rec.tabs)
	require.Zero(t, h.rec.payments)
}

func TestSeenKeyPushedBeforeHandoff(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{{
		ID: "1", FullName: "Kia Rio", Company: "Avis", PriceText: "$100", HasDetail: true,
	}}}}
	h := newHarness(t, page)

	var keysAtOpen []string
	page.onOpen = func(Candidate) {
		keysAtOpen = h.coord.GetState().SeenKeys
	}

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.Equal(t, []string{res.Items[0].UniqueKey}, keysAtOpen)
}

func TestNotSearchPageFailsRoundsSoftly(t *testing.T) {
	page := &fakePage{notSearch: true}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1, 2}})
	require.NoError(t, err)
	require.Len(t, res.Rounds, 2)
	for _, rr := range res.Rounds {
		require.ErrorIs(t, rr.Err, ErrNotSearchPage)
	}
	require.Equal(t, 1, h.rec.stops)
	require.False(t, h.coord.GetState().Active)
}

func TestResultsTimeout(t *testing.T) {
	page := &fakePage{form: true, noResults: true}
	h := newHarness(t, page)

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1}})
	require.NoError(t, err)
	require.ErrorIs(t, res.Rounds[0].Err, ErrResultsTimeout)
}

func TestExternalStopEndsRun(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Kia Rio", "Avis", "$100"),
		card("2", "Kia Rio", "Avis", "$110"),
		card("3", "Kia Rio", "Avis", "$120"),
	}}}
	h := newHarness(t, page)
	h.rec.onUpdate = func(req models.UpdateRequest) {
		if len(req.Items) == 1 {
			h.coord.Stop(context.Background())
		}
	}

	res, err := h.engine.Run(context.Background(), models.Config{Durations: []int{1, 2}})
	require.NoError(t, err)
	require.True(t, res.Stopped)
	require.Len(t, res.Items, 1)
	require.Len(t, res.Rounds, 1)
	require.Zero(t, h.rec.stops)
}

func TestResumeKeepsAccumulatedState(t *testing.T) {
	page := &fakePage{form: true, pages: [][]Candidate{{
		card("1", "Kia Rio", "Avis", "$100"),
		card("2", "Toyota Corolla", "Avis", "$90"),
	}}}
	h := newHarness(t, page)

	_, err := h.engine.Resume(context.Background())
	require.ErrorIs(t, err, ErrNoSession)

	cfg := models.Config{Durations: []int{1}}.Normalize()
	h.coord.Start(context.Background(), cfg)

	prior, _, ok := h.engine.buildItem(page.pages[0][0], cfg, roundMeta{
		pickup:  models.NewDate(testNow).AddDays(1),
		dropoff: models.NewDate(testNow).AddDays(2),
		days:    1,
	})
	require.True(t, ok)
	h.coord.Update(context.Background(), models.UpdateRequest{
		Items:    []models.ItemRecord{prior},
		SeenKeys: []string{prior.UniqueKey},
	})

	res, err := h.engine.Resume(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, prior.UniqueKey, res.Items[0].UniqueKey)
	require.Equal(t, "Toyota Corolla", res.Items[1].BaseName)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	h := newHarness(t, &fakePage{})
	_, err := h.engine.Run(context.Background(), models.Config{Location: "Perth"})
	require.Error(t, err)
	require.False(t, h.coord.GetState().Active)
}

func TestRunHonoursCancellation(t *testing.T) {
	page := &fakePage{form: true, noResults: true}
	h := newHarness(t, page)
	h.engine.timing.ResultsTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.engine.Run(ctx, models.Config{Durations: []int{1}})
	require.True(t, errors.Is(err, context.DeadlineExceeded), fmt.Sprint(err))
}
