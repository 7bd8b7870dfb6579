package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

const breakdownTimeout = 10 * time.Second

// ExtractPayment reads the payment breakdown from a loaded detail tab. When
// tabID is empty the tab is looked up by URL.
func (b *Browser) ExtractPayment(ctx context.Context, tabID, url string) (models.PaymentData, error) {
	id := target.ID(tabID)
	if id == "" {
		found, err := b.findTarget(url)
		if err != nil {
			return models.PaymentData{}, err
		}
		id = found
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(id))
	defer cancel()

	waitCtx, cancelWait := context.WithTimeout(ctx, breakdownTimeout)
	defer cancelWait()

	var html string
	err := b.run(waitCtx, tabCtx,
		chromedp.WaitReady(b.profile.PriceBreakdown, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return models.PaymentData{}, fmt.Errorf("price breakdown not found on %s: %w", url, err)
	}
	return ParsePayment(html, b.profile)
}

func (b *Browser) findTarget(url string) (target.ID, error) {
	targets, err := chromedp.Targets(b.ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list targets: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && t.URL == url {
			return t.TargetID, nil
		}
	}
	return "", fmt.Errorf("no tab with url %s", url)
}
