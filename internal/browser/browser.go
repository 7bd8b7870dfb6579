package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Options configures how a Browser reaches Chrome
type Options struct {
	// RemoteURL is a devtools websocket endpoint; empty launches a local Chrome
	RemoteURL string
	Headless  bool
	UserAgent string
	Profile   SiteProfile
	// DetailPattern matches URLs of detail tabs
	DetailPattern string
	Logger        *slog.Logger
}

// Browser owns one chromedp connection. Its first tab is the primary page;
// any other page target is treated as a secondary tab.
type Browser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	primary target.ID
	profile SiteProfile
	detail  *regexp.Regexp

	mu     sync.Mutex
	loaded map[target.ID]string

	logger *slog.Logger
}

// Connect starts or attaches to Chrome and opens the primary tab
func Connect(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Profile.Card == "" {
		opts.Profile = DefaultProfile()
	}
	if opts.DetailPattern == "" {
		opts.DetailPattern = `/offer/`
	}
	detail, err := regexp.Compile(opts.DetailPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid detail pattern: %w", err)
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	b := &Browser{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		ctx:         browserCtx,
		cancel:      cancel,
		primary:     chromedp.FromContext(browserCtx).Target.TargetID,
		profile:     opts.Profile,
		detail:      detail,
		loaded:      make(map[target.ID]string),
		logger:      opts.Logger.With("component", "browser"),
	}
	b.logger.Info("browser connected", "remote", opts.RemoteURL != "", "primary", b.primary)
	return b, nil
}

// Page returns the primary tab as a page driver
func (b *Browser) Page() *ChromePage {
	return &ChromePage{b: b, profile: b.profile}
}

// Navigate loads url in the primary tab
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, b.ctx, chromedp.Navigate(url))
}

func (b *Browser) Close() error {
	b.cancel()
	b.cancelAlloc()
	return nil
}

// run executes actions on tabCtx while honouring cancellation of ctx
func (b *Browser) run(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}
