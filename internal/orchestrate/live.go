package orchestrate

import (
	"context"
	"time"

	"github.com/scrapeloop/fkreviews/internal/browser"
	"github.com/scrapeloop/fkreviews/internal/discover"
)

const (
	browserNavTimeout  = 60 * time.Second
	browserEvalTimeout = 20 * time.Second
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// liveBrowser adapts a chromedp session to the tier operations.
type liveBrowser struct {
	sess *browser.Session
}

func liveBrowserFactory(ctx context.Context) (browserOps, error) {
	sess, err := browser.NewSession(ctx, browserUserAgent)
	if err != nil {
		return nil, err
	}
	return &liveBrowser{sess: sess}, nil
}

func (b *liveBrowser) Discover(ctx context.Context, targetURL string) (*discover.Contract, error) {
	return discover.Run(ctx, b.sess, targetURL)
}

func (b *liveBrowser) ReplayPage(ctx context.Context, c *discover.Contract, n int) (*discover.PageResult, error) {
	return discover.FetchPage(ctx, b.sess, c, n)
}

// LoadPage navigates to a page and reads the evaluated state global. When the
// global is unset it returns the rendered HTML for scanner-based extraction.
func (b *liveBrowser) LoadPage(ctx context.Context, url string) (any, string, error) {
	if err := b.sess.Navigate(ctx, url, browserNavTimeout); err != nil {
		return nil, "", err
	}

	var state any
	err := b.sess.Evaluate(ctx, "window.__INITIAL_STATE__ || null", &state, browserEvalTimeout)
	if err == nil && state != nil {
		return state, "", nil
	}

	html, err := b.sess.CurrentHTML(ctx, browserEvalTimeout)
	if err != nil {
		return nil, "", err
	}
	return nil, html, nil
}

func (b *liveBrowser) Close() {
	b.sess.Close()
}
