package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/shehryarbajwa/rentharvest/internal/engine"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// ChromePage drives the primary tab through the engine's page contract
type ChromePage struct {
	b       *Browser
	profile SiteProfile
}

var _ engine.Page = (*ChromePage)(nil)

func (p *ChromePage) eval(ctx context.Context, script string, out any) error {
	return p.b.run(ctx, p.b.ctx, chromedp.Evaluate(script, out))
}

func (p *ChromePage) exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf(`!!document.querySelector(%q)`, selector), &ok)
	return ok, err
}

func (p *ChromePage) IsSearchForm(ctx context.Context) (bool, error) {
	return p.exists(ctx, p.profile.SearchForm)
}

func (p *ChromePage) IsResultsPage(ctx context.Context) (bool, error) {
	return p.exists(ctx, p.profile.ResultsList)
}

func (p *ChromePage) FillLocation(ctx context.Context, location string) error {
	err := p.b.run(ctx, p.b.ctx,
		chromedp.WaitVisible(p.profile.SearchForm, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const input = document.querySelector(%q);
			if (!input) return false;
			input.focus();
			input.value = "";
			input.dispatchEvent(new Event("input", { bubbles: true }));
			return true;
		})()`, p.profile.LocationInput), nil),
		chromedp.SendKeys(p.profile.LocationInput, location, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("location input: %w", err)
	}
	return nil
}

// SetDates opens the date picker and clicks the pickup and dropoff days
func (p *ChromePage) SetDates(ctx context.Context, pickup, dropoff models.Date) error {
	var ok bool
	script := fmt.Sprintf(`(async () => {
		const sleep = (ms) => new Promise(r => setTimeout(r, ms));
		const norm = (s) => (s || "").replace(/\s+/g, " ").trim();
		document.dispatchEvent(new KeyboardEvent("keydown", { key: "Escape", bubbles: true }));
		const field = document.querySelector(%q);
		if (field) { field.click(); await sleep(600); }
		let panel = null;
		for (let i = 0; i < 40 && !panel; i++) { panel = document.querySelector(%q); if (!panel) await sleep(200); }
		if (!panel) return false;
		const pick = async (day) => {
			const cur = document.querySelector(%q) || panel;
			const el = Array.from(cur.querySelectorAll(%q)).find(n => parseInt(norm(n.textContent), 10) === day);
			if (!el) return false;
			el.click();
			await sleep(400);
			return true;
		};
		const ok1 = await pick(%d);
		const ok2 = await pick(%d);
		if (!ok1 || !ok2) return false;
		const apply = Array.from(document.querySelectorAll("button")).find(b => new RegExp(%q, "i").test(norm(b.textContent)) && !b.disabled);
		if (apply) { apply.click(); await sleep(500); }
		return true;
	})()`,
		p.profile.DateField, p.profile.CalendarPanel, p.profile.CalendarPanel, p.profile.CalendarDay,
		pickup.Day(), dropoff.Day(), p.profile.ApplyDatesText)

	err := p.b.run(ctx, p.b.ctx, chromedp.Evaluate(script, &ok, awaitPromise))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("could not select %s to %s in the date picker", pickup, dropoff)
	}
	return nil
}

func (p *ChromePage) SubmitSearch(ctx context.Context) error {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf(`(() => {
		const re = new RegExp(%q, "i");
		const btn = Array.from(document.querySelectorAll("button")).find(b => re.test((b.textContent || "").replace(/\s+/g, " ")));
		if (!btn || btn.disabled) return false;
		btn.click();
		return true;
	})()`, p.profile.SearchButtonText), &ok)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("search button not found or disabled")
	}
	return nil
}

// Candidates stamps unseen cards with an id, then parses the results list
func (p *ChromePage) Candidates(ctx context.Context) ([]engine.Candidate, error) {
	var html, location string
	err := p.b.run(ctx, p.b.ctx,
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			window.__rhSeq = window.__rhSeq || 0;
			document.querySelectorAll(%q).forEach(c => {
				if (!c.getAttribute(%q)) c.setAttribute(%q, "rh-" + (++window.__rhSeq));
			});
			return true;
		})()`, p.profile.Card, cardIDAttr, cardIDAttr), nil),
		chromedp.OuterHTML("body", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, err
	}
	return ParseCandidates(html, location, p.profile)
}

func (p *ChromePage) Metrics(ctx context.Context) (engine.ScrollMetrics, error) {
	var m struct {
		Height     int  `json:"height"`
		AtBoundary bool `json:"atBoundary"`
	}
	err := p.eval(ctx, fmt.Sprintf(`(() => {
		const h = document.body.scrollHeight;
		return { height: h, atBoundary: window.scrollY + window.innerHeight >= h - %d };
	})()`, p.profile.BoundaryMargin), &m)
	return engine.ScrollMetrics{Height: m.Height, AtBoundary: m.AtBoundary}, err
}

func (p *ChromePage) ScrollBy(ctx context.Context, step int) error {
	return p.eval(ctx, fmt.Sprintf(`window.scrollBy(0, %d)`, step), nil)
}

func (p *ChromePage) ScrollToTop(ctx context.Context) error {
	return p.eval(ctx, `window.scrollTo(0, 0)`, nil)
}

func (p *ChromePage) Paginate(ctx context.Context) (bool, error) {
	if p.profile.NextPage == "" {
		return false, nil
	}
	var moved bool
	err := p.eval(ctx, fmt.Sprintf(`(() => {
		const btn = document.querySelector(%q);
		if (!btn || btn.disabled || btn.getAttribute("aria-disabled") === "true") return false;
		btn.scrollIntoView({ block: "center" });
		btn.click();
		return true;
	})()`, p.profile.NextPage), &moved)
	return moved, err
}

// OpenDetail clicks the card's detail control, forcing it into a new tab
func (p *ChromePage) OpenDetail(ctx context.Context, c engine.Candidate) error {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf(`(() => {
		const card = document.querySelector('[%s="' + %q + '"]');
		const ctl = card && card.querySelector(%q);
		if (!ctl) return false;
		if (ctl.tagName === "A") ctl.target = "_blank";
		ctl.scrollIntoView({ block: "center" });
		ctl.click();
		return true;
	})()`, cardIDAttr, c.ID, p.profile.DetailControl), &ok)
	if err != nil {
		return err
	}
	if !ok {
		if c.DetailURL == "" {
			return fmt.Errorf("detail control for %s not found", c.FullName)
		}
		return p.eval(ctx, fmt.Sprintf(`window.open(%q, "_blank")`, c.DetailURL), nil)
	}
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
