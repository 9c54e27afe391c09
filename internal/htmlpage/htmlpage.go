// Package htmlpage fetches server-rendered listing pages and recognizes
// anti-bot block signatures in their content.
package htmlpage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/scrapeloop/fkreviews/internal/fetchclient"
	"github.com/scrapeloop/fkreviews/internal/logger"
)

const fetchTimeout = 45 * time.Second

// Browser-like headers; listing pages served to obvious bots get challenged.
var defaultHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Sec-Ch-Ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// Page is one fetched listing page.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
}

// Fetcher retrieves listing pages over plain HTTP, rotating proxy sessions on
// blocking statuses and transport failures the same way the API client does.
type Fetcher struct {
	rotator     *fetchclient.Rotator
	allowDirect bool
	limiter     *rate.Limiter
}

// NewFetcher creates a page fetcher. rotator may be nil for direct-only
// fetching; allowDirect permits one unproxied attempt after proxy retries
// are spent.
func NewFetcher(rotator *fetchclient.Rotator, allowDirect bool) *Fetcher {
	return &Fetcher{
		rotator:     rotator,
		allowDirect: allowDirect,
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
	}
}

// Fetch retrieves one page. Without a proxy it issues the request once. With
// one it retries across fresh sessions on blocking statuses and proxy-shaped
// transport errors before an optional direct attempt.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if f.rotator == nil {
		return f.attempt(ctx, pageURL, "")
	}

	var lastErr error
	for attempt := 1; attempt <= fetchclient.MaxProxyAttempts; attempt++ {
		session := f.rotator.SessionURL()
		page, err := f.attempt(ctx, pageURL, session)
		if err != nil {
			if !fetchclient.IsProxyFailure(err) {
				return nil, err
			}
			logger.Debug("page fetch failed, rotating session",
				"attempt", attempt, "url", pageURL, "error", err)
			lastErr = err
			continue
		}
		if IsBlockingStatus(page.StatusCode) {
			logger.Debug("blocking status on page fetch, rotating session",
				"attempt", attempt, "url", pageURL, "status", page.StatusCode)
			lastErr = fmt.Errorf("blocked with status %d", page.StatusCode)
			continue
		}
		return page, nil
	}

	if f.allowDirect {
		logger.Debug("proxy attempts exhausted, trying direct", "url", pageURL)
		return f.attempt(ctx, pageURL, "")
	}
	return nil, fmt.Errorf("all proxy attempts failed: %w", lastErr)
}

// attempt issues one request. A new collector is created per attempt so proxy
// sessions never leak between requests.
func (f *Fetcher) attempt(ctx context.Context, pageURL, proxyURL string) (*Page, error) {
	result := &Page{URL: pageURL}

	c := colly.NewCollector(
		colly.UserAgent(defaultHeaders["User-Agent"]),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(fetchTimeout)
	// Challenge pages arrive with blocking statuses; their bodies are needed
	// for block classification.
	c.ParseHTTPErrorResponse = true

	if proxyURL != "" {
		if err := c.SetProxy(proxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range defaultHeaders {
			r.Headers.Set(k, v)
		}
	})

	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.HTML = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.HTML = string(r.Body)
		}
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return result, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	if fetchErr != nil {
		return result, fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
	}
	return result, nil
}

// PageURL sets the page-offset parameter on a listing URL.
func PageURL(baseURL string, page int) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	q := u.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Blocking status codes for the HTML tier.
func IsBlockingStatus(code int) bool {
	return code == 403 || code == 429 || code == 503
}

var blockTitleMarkers = []string{"access denied", "captcha", "robot"}

var blockBodyMarkers = []string{
	"px-captcha",
	"_incapsula_resource",
	"cf-challenge",
	"are you a human",
}

// IsBlockedBody reports whether page content matches a known anti-bot
// challenge signature.
func IsBlockedBody(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockBodyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, marker := range blockTitleMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}
