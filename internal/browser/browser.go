// Package browser wraps a chromedp session used by the discovery and
// browser-paging tiers. One session is owned per target and closed before
// the next target starts.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/scrapeloop/fkreviews/internal/logger"
)

const settleWait = 1500 * time.Millisecond

// Session is one headless browser tab.
type Session struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewSession launches a headless browser tab with stealth patches applied
// to every new document.
func NewSession(ctx context.Context, userAgent string) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Start the browser and install the stealth script before any navigation.
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Session{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// Navigate loads a URL and waits for the document to settle.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	logger.Debug("browser navigating", "url", url)

	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := propagate(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Sleep(settleWait),
	)
}

// Evaluate runs a JavaScript expression in the page, awaiting promises, and
// unmarshals the result into out.
func (s *Session) Evaluate(ctx context.Context, expr string, out any, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := propagate(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, chromedp.Evaluate(expr, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
}

// CurrentHTML returns the rendered document's outer HTML.
func (s *Session) CurrentHTML(ctx context.Context, timeout time.Duration) (string, error) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := propagate(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Executor returns a context suitable for issuing raw CDP commands against
// this tab, for callers that pair with ListenTarget events.
func (s *Session) executor() context.Context {
	c := chromedp.FromContext(s.tabCtx)
	return cdp.WithExecutor(s.tabCtx, c.Target)
}

// TabContext exposes the tab context for event listeners.
func (s *Session) TabContext() context.Context {
	return s.tabCtx
}

// Close releases the tab and the browser process.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// propagate cancels a chromedp run when the caller's context ends. It returns
// a stop func releasing the watcher.
func propagate(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
