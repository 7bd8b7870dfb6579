package engine

import (
	"context"
	"fmt"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// handoff opens the card's detail page in a secondary tab and waits for the
// coordinator to collect its payment fields. At most one secondary tab is open
// at a time: tabs are closed before opening and always closed afterwards.
func (e *Engine) handoff(ctx context.Context, c Candidate, item *models.ItemRecord) error {
	log := e.logger.With("name", item.BaseName)

	e.closeTabs(ctx)
	if err := sleep(ctx, e.timing.CloseSettle); err != nil {
		return err
	}
	defer e.closeTabs(context.WithoutCancel(ctx))

	if err := e.page.OpenDetail(ctx, c); err != nil {
		return fmt.Errorf("failed to open detail page: %w", err)
	}
	if c.DetailURL != "" {
		if err := e.coord.TrackTab(ctx, c.DetailURL); err != nil {
			log.Debug("failed to track tab", "err", err)
		}
	}

	url, err := e.resolveTab(ctx)
	if err != nil {
		return err
	}
	log.Debug("secondary tab resolved", "url", url)

	if err := sleep(ctx, e.timing.offerSettle()); err != nil {
		return err
	}

	for attempt := 1; attempt <= e.timing.PaymentPollAttempts; attempt++ {
		data, err := e.coord.GetPayment(ctx, url)
		if err != nil {
			log.Debug("payment lookup failed", "attempt", attempt, "err", err)
		} else if !data.Empty() {
			item.PayNow = data.PayNow
			item.PayAtPickup = data.PayAtPickup
			item.DetailURL = url
			log.Info("payment data received", "url", url, "pay_now", data.PayNow, "pay_at_pickup", data.PayAtPickup)
			return nil
		}
		if attempt < e.timing.PaymentPollAttempts {
			if err := sleep(ctx, e.timing.PaymentPollInterval); err != nil {
				return err
			}
		}
	}

	log.Warn("no payment data after polling", "url", url, "attempts", e.timing.PaymentPollAttempts)
	return nil
}

func (e *Engine) resolveTab(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= e.timing.TabPollAttempts; attempt++ {
		tab, err := e.coord.MostRecentTab(ctx)
		if err == nil && tab != nil && tab.URL != "" {
			return tab.URL, nil
		}
		if attempt < e.timing.TabPollAttempts {
			if err := sleep(ctx, e.timing.TabPollInterval); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrTabUnresolved, e.timing.TabPollAttempts)
}

func (e *Engine) closeTabs(ctx context.Context) {
	if _, err := e.coord.CloseTabs(ctx, e.detailPat); err != nil {
		e.logger.Debug("failed to close secondary tabs", "err", err)
	}
}
