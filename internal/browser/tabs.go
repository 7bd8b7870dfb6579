package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// TabLoadedFunc receives secondary tabs once they report a URL
type TabLoadedFunc func(ctx context.Context, tabID, url string)

// WatchTabs reports secondary tabs: pages opened from another tab or whose
// URL looks like a detail page. The callback runs
// on its own goroutine so the event loop is never blocked.
func (b *Browser) WatchTabs(ctx context.Context, fn TabLoadedFunc) {
	chromedp.ListenBrowser(b.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *target.EventTargetInfoChanged:
			info := ev.TargetInfo
			if !b.isSecondary(info) || info.URL == "" || info.URL == "about:blank" {
				return
			}
			b.mu.Lock()
			prev := b.loaded[info.TargetID]
			b.loaded[info.TargetID] = info.URL
			b.mu.Unlock()
			if prev == info.URL {
				return
			}
			b.logger.Debug("secondary tab loaded", "tab", info.TargetID, "url", info.URL)
			go fn(ctx, string(info.TargetID), info.URL)

		case *target.EventTargetDestroyed:
			b.mu.Lock()
			delete(b.loaded, ev.TargetID)
			b.mu.Unlock()
		}
	})
}

func (b *Browser) isSecondary(info *target.Info) bool {
	if info == nil || info.Type != "page" || info.TargetID == b.primary {
		return false
	}
	return info.OpenerID != "" || b.detail.MatchString(info.URL)
}

// CloseTabs closes every page target other than the primary whose URL
// satisfies match.
func (b *Browser) CloseTabs(ctx context.Context, match func(url string) bool) (int, error) {
	targets, err := chromedp.Targets(b.ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list targets: %w", err)
	}

	closed := 0
	var firstErr error
	for _, t := range targets {
		if t.Type != "page" || t.TargetID == b.primary || !match(t.URL) {
			continue
		}
		if err := b.closeTarget(ctx, t.TargetID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		closed++
	}
	return closed, firstErr
}

func (b *Browser) closeTarget(ctx context.Context, id target.ID) error {
	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(id))
	defer cancel()
	if err := b.run(ctx, tabCtx, page.Close()); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}
	b.mu.Lock()
	delete(b.loaded, id)
	b.mu.Unlock()
	return nil
}
