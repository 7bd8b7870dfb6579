package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

type roundMeta struct {
	pickup  models.Date
	dropoff models.Date
	days    int
}

// round runs one duration. Failures end the round and are reported in the result.
func (e *Engine) round(ctx context.Context, st *runState, n, days int) RoundResult {
	pickup := models.NewDate(e.now()).AddDays(1)
	meta := roundMeta{pickup: pickup, dropoff: pickup.AddDays(days), days: days}
	rr := RoundResult{Days: days, Pickup: pickup}

	log := e.logger.With("round", n, "pickup", meta.pickup.String(), "dropoff", meta.dropoff.String(), "days", days)
	log.Info("round starting")

	if err := e.prepare(ctx, st.cfg, meta); err != nil {
		rr.Err = err
		log.Warn("round skipped", "err", err)
		return rr
	}

	added, err := e.scan(ctx, st, meta)
	rr.Added, rr.Err = added, err
	switch {
	case errors.Is(err, errStopped):
		log.Info("round interrupted by stop", "added", added)
	case err != nil:
		log.Warn("round ended early", "added", added, "err", err)
	default:
		log.Info("round complete", "added", added, "total", len(st.items))
	}
	return rr
}

// prepare moves the page from the search form to a settled results list
func (e *Engine) prepare(ctx context.Context, cfg models.Config, meta roundMeta) error {
	form, err := e.page.IsSearchForm(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect page: %w", err)
	}
	if !form {
		results, err := e.page.IsResultsPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to inspect page: %w", err)
		}
		if !results {
			return ErrNotSearchPage
		}
	}

	if form {
		if err := e.page.FillLocation(ctx, cfg.Location); err != nil {
			return fmt.Errorf("failed to fill location: %w", err)
		}
		if err := sleep(ctx, e.timing.FormSettle); err != nil {
			return err
		}
	}
	if err := e.page.SetDates(ctx, meta.pickup, meta.dropoff); err != nil {
		return fmt.Errorf("failed to set dates: %w", err)
	}
	if err := sleep(ctx, e.timing.FormSettle); err != nil {
		return err
	}
	if err := e.page.SubmitSearch(ctx); err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}

	if err := e.waitForResults(ctx); err != nil {
		return err
	}
	return sleep(ctx, e.timing.ResultExtraWait)
}

func (e *Engine) waitForResults(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.timing.ResultsTimeout)
	defer cancel()
	for {
		ok, err := e.page.IsResultsPage(waitCtx)
		if err == nil && ok {
			return nil
		}
		if err := sleep(waitCtx, max(e.timing.ResultsPoll, time.Millisecond)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w after %s", ErrResultsTimeout, e.timing.ResultsTimeout)
		}
	}
}
