package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"

	"github.com/scrapeloop/fkreviews/internal/canonical"
	"github.com/scrapeloop/fkreviews/internal/discover"
	"github.com/scrapeloop/fkreviews/internal/fetchclient"
	"github.com/scrapeloop/fkreviews/internal/htmlpage"
	"github.com/scrapeloop/fkreviews/internal/logger"
	"github.com/scrapeloop/fkreviews/internal/pagestate"
	"github.com/scrapeloop/fkreviews/internal/recognize"
)

// zeroYieldLimit ends a tier after this many consecutive empty pages.
const zeroYieldLimit = 2

// browserOps are the browser-backed operations tiers depend on; they are an
// interface so the state machine is testable without Chrome.
type browserOps interface {
	Discover(ctx context.Context, targetURL string) (*discover.Contract, error)
	ReplayPage(ctx context.Context, c *discover.Contract, n int) (*discover.PageResult, error)
	LoadPage(ctx context.Context, url string) (state any, html string, err error)
	Close()
}

// runDiscovery drives one browser navigation, builds a contract from the
// observed traffic, and replays it page by page.
func (o *Orchestrator) runDiscovery(ctx context.Context, t *target, ops browserOps) {
	log := logger.With("tier", t.tier.String(), "url", t.canonical.URL)

	contract, err := ops.Discover(ctx, t.canonical.URL)
	if err != nil {
		log.Warn("discovery yielded no contract", "error", err)
		return
	}

	t.consecutiveEmpty = 0
	for page := 1; page <= o.cfg.MaxPages; page++ {
		if o.acc.Done() || o.nearDeadline(ctx) {
			return
		}

		result, err := ops.ReplayPage(ctx, contract, page)
		if err != nil {
			log.Warn("contract replay failed", "page", page, "error", err)
			return
		}
		if result.Status < 200 || result.Status >= 300 {
			log.Debug("contract replay got non-success status", "page", page, "status", result.Status)
			return
		}

		added := o.acc.AddAll(recognize.Records(result.Data, contract.URL))
		log.Debug("replayed contract page", "page", page, "new_records", added)
		if o.flushFailed(log) {
			return
		}

		if added == 0 {
			t.consecutiveEmpty++
			if t.consecutiveEmpty >= zeroYieldLimit {
				log.Debug("contract pagination exhausted", "page", page)
				return
			}
		} else {
			t.consecutiveEmpty = 0
		}

		if !contract.MultiPage() {
			return
		}
	}
}

// Direct review API endpoint reachable once the product identifier is known.
const directAPIFormat = "https://www.flipkart.com/api/3/product/reviews?pid=%s&page=%d&sortOrder=MOST_HELPFUL"

var directAPIHeaders = map[string]string{
	"Accept":       "application/json",
	"Content-Type": "application/json",
	"X-User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) FKUA/website/42/website/Desktop",
}

// runDirectAPI pages the identifier-based JSON API.
func (o *Orchestrator) runDirectAPI(ctx context.Context, t *target) {
	log := logger.With("tier", t.tier.String(), "pid", t.canonical.ProductID)

	t.consecutiveEmpty = 0
	for page := 1; page <= o.cfg.MaxPages; page++ {
		if o.acc.Done() || o.nearDeadline(ctx) {
			return
		}

		reqURL := fmt.Sprintf(directAPIFormat, t.canonical.ProductID, page)
		resp, err := o.api.Fetch(ctx, reqURL, fetchclient.Options{Headers: directAPIHeaders})
		if err != nil {
			log.Warn("direct api fetch failed", "page", page, "error", err)
			return
		}
		if resp.StatusCode != http.StatusOK {
			log.Debug("direct api returned error status", "page", page, "status", resp.StatusCode)
			return
		}

		var v any
		if err := json.Unmarshal(resp.Body, &v); err != nil {
			log.Debug("direct api body not JSON", "page", page, "error", err)
			return
		}

		added := o.acc.AddAll(recognize.Records(v, t.canonical.URL))
		log.Debug("direct api page processed", "page", page, "new_records", added)
		if o.flushFailed(log) {
			return
		}

		if added == 0 {
			t.consecutiveEmpty++
			if t.consecutiveEmpty >= zeroYieldLimit {
				return
			}
		} else {
			t.consecutiveEmpty = 0
		}
	}
}

// htmlOutcome classifies how the HTML tier ended, which decides whether the
// browser tier runs next.
type htmlOutcome int

const (
	// htmlCompleted: pages exhausted or pagination dried up; the browser tier
	// may still try if the quota is unmet.
	htmlCompleted htmlOutcome = iota
	// htmlEscalate: page-1 hard failure after exhausting retries; the browser
	// tier must take over.
	htmlEscalate
	// htmlStopped: a later-page failure ended the tier keeping partial
	// results; no escalation.
	htmlStopped
)

// runHTMLPaging fetches sequential listing pages and reports how the tier
// ended. Page-1 hard failures escalate; later-page failures keep partial
// results and end the tier quietly.
func (o *Orchestrator) runHTMLPaging(ctx context.Context, t *target) htmlOutcome {
	log := logger.With("tier", t.tier.String(), "url", t.canonical.URL)

	t.consecutiveEmpty = 0
	for page := 1; page <= o.cfg.MaxPages; page++ {
		if o.acc.Done() || o.nearDeadline(ctx) {
			return htmlStopped
		}

		pageURL := htmlpage.PageURL(t.canonical.URL, page)
		resp, err := o.pages.Fetch(ctx, pageURL)
		if err != nil {
			log.Warn("page fetch failed", "page", page, "error", err)
			if page == 1 {
				return htmlEscalate
			}
			return htmlStopped
		}

		if htmlpage.IsBlockingStatus(resp.StatusCode) || htmlpage.IsBlockedBody(resp.HTML) {
			log.Warn("anti-bot block detected", "page", page, "status", resp.StatusCode)
			o.debug.Put(fmt.Sprintf("blocked-%s-page%d.html", hostOf(pageURL), page), []byte(resp.HTML))
			if page == 1 {
				return htmlEscalate
			}
			return htmlStopped
		}

		state, err := pagestate.Extract(resp.HTML)
		if err != nil {
			log.Warn("embedded state missing", "page", page)
			o.debug.Put(fmt.Sprintf("nostate-%s-page%d.html", hostOf(pageURL), page), []byte(resp.HTML))
			if page == 1 {
				return htmlEscalate
			}
			return htmlStopped
		}

		if page == 1 {
			o.refineTarget(t, state)
		}

		added := o.acc.AddAll(recognize.Records(state, pageURL))
		log.Debug("html page processed", "page", page, "new_records", added)
		if o.flushFailed(log) {
			return htmlStopped
		}

		if added == 0 {
			if page == 1 {
				log.Warn("zero records on first page")
				o.debug.Put(fmt.Sprintf("zeroyield-%s-page1.html", hostOf(pageURL)), []byte(resp.HTML))
				return htmlEscalate
			}
			t.consecutiveEmpty++
			if t.consecutiveEmpty >= zeroYieldLimit {
				return htmlCompleted
			}
		} else {
			t.consecutiveEmpty = 0
		}
	}
	return htmlCompleted
}

// runBrowserPaging navigates a real browser to each page and reads the
// in-page state directly, falling back to parsing rendered HTML.
func (o *Orchestrator) runBrowserPaging(ctx context.Context, t *target, ops browserOps) {
	log := logger.With("tier", t.tier.String(), "url", t.canonical.URL)

	t.consecutiveEmpty = 0
	for page := 1; page <= o.cfg.MaxPages; page++ {
		if o.acc.Done() || o.nearDeadline(ctx) {
			return
		}

		pageURL := htmlpage.PageURL(t.canonical.URL, page)
		state, html, err := ops.LoadPage(ctx, pageURL)
		if err != nil {
			log.Warn("browser page load failed", "page", page, "error", err)
			return
		}

		if state == nil && html != "" {
			state, err = pagestate.Extract(html)
			if err != nil {
				log.Warn("no state in rendered page", "page", page)
				o.debug.Put(fmt.Sprintf("browser-nostate-%s-page%d.html", hostOf(pageURL), page), []byte(html))
				return
			}
		}

		added := o.acc.AddAll(recognize.Records(state, pageURL))
		log.Debug("browser page processed", "page", page, "new_records", added)
		if o.flushFailed(log) {
			return
		}

		if added == 0 {
			t.consecutiveEmpty++
			if t.consecutiveEmpty >= zeroYieldLimit {
				return
			}
		} else {
			t.consecutiveEmpty = 0
		}
	}
}

// refineTarget upgrades the target with identifiers found in page-1 embedded
// state and re-derives the canonical URL with them, so subsequent HTML and
// browser pages of this target request the more specific listing.
func (o *Orchestrator) refineTarget(t *target, state any) {
	if t.canonical.ProductID != "" {
		return
	}
	pid := findProductID(state)
	if pid == "" {
		return
	}
	t.canonical.ProductID = pid

	if u, err := url.Parse(t.canonical.URL); err == nil {
		q := u.Query()
		q.Set("pid", pid)
		u.RawQuery = q.Encode()
		if refined, err := canonical.Canonicalize(u.String()); err == nil {
			t.canonical = refined
		}
	}
	logger.Debug("refined target from embedded state",
		"product_id", pid, "canonical", t.canonical.URL)
}

var pidKeys = []string{"productId", "product_id", "pid"}

var pidFormat = regexp.MustCompile(`^[A-Za-z0-9]{10,24}$`)

func findProductID(v any) string {
	switch node := v.(type) {
	case map[string]any:
		for _, k := range pidKeys {
			if s, ok := node[k].(string); ok && pidFormat.MatchString(s) {
				return s
			}
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if pid := findProductID(node[k]); pid != "" {
				return pid
			}
		}
	case []any:
		for _, child := range node {
			if pid := findProductID(child); pid != "" {
				return pid
			}
		}
	}
	return ""
}

func (o *Orchestrator) flushFailed(log *slog.Logger) bool {
	if err := o.acc.MaybeFlush(false); err != nil {
		log.Error("flush to sink failed", "error", err)
		return true
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
