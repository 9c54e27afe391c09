package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/scrapeloop/fkreviews/internal/browser"
	"github.com/scrapeloop/fkreviews/internal/logger"
	"github.com/scrapeloop/fkreviews/internal/recognize"
)

const (
	// Extra time after the document settles for the page's own API calls.
	xhrWait         = 3 * time.Second
	navTimeout      = 60 * time.Second
	evalTimeout     = 30 * time.Second
	recordCredit    = 2
	recordCreditCap = 40
)

var reviewEndpointRe = regexp.MustCompile(`(?i)reviews?/v\d|review.*page`)

// PlausibleReviewAPI filters observed traffic down to candidate exchanges:
// same-site host, an API path, and at least one review-ish marker.
func PlausibleReviewAPI(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, "flipkart.com") {
		return false
	}
	if !strings.Contains(u.Path, "/api/") {
		return false
	}

	lower := strings.ToLower(rawURL)
	q := u.Query()
	return strings.Contains(lower, "review") ||
		q.Has("sortOrder") || q.Has("aid") ||
		strings.Contains(u.Path, "/product-reviews/")
}

// scoreRule is one independently testable scoring signal.
type scoreRule struct {
	name   string
	weight int
	match  func(ex browser.Exchange) bool
}

var scoreRules = []scoreRule{
	{"success status", 30, func(ex browser.Exchange) bool {
		return ex.Status >= 200 && ex.Status < 300
	}},
	{"review endpoint path", 40, func(ex browser.Exchange) bool {
		return reviewEndpointRe.MatchString(ex.URL)
	}},
	{"pagination markers", 15, func(ex browser.Exchange) bool {
		return strings.Contains(ex.URL, "page=") ||
			strings.Contains(ex.URL, "offset=") ||
			strings.Contains(ex.URL, "sortOrder=")
	}},
}

// Score rates how much an exchange looks like the reviews API. Record credit
// is proportional to what the recognizer extracts from the body, capped.
func Score(ex browser.Exchange) int {
	total := 0
	for _, rule := range scoreRules {
		if rule.match(ex) {
			total += rule.weight
		}
	}

	if len(ex.ResponseBody) > 0 {
		var v any
		if err := json.Unmarshal(ex.ResponseBody, &v); err == nil {
			credit := len(recognize.Records(v, ex.URL)) * recordCredit
			if credit > recordCreditCap {
				credit = recordCreditCap
			}
			total += credit
		}
	}
	return total
}

// BuildContract picks the highest-scoring candidate (earlier wins ties) and
// synthesizes its replayable contract.
func BuildContract(exchanges []browser.Exchange) (*Contract, error) {
	best := -1
	bestScore := 0
	for i, ex := range exchanges {
		s := Score(ex)
		logger.Debug("scored candidate exchange", "url", ex.URL, "score", s)
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return nil, ErrNoContract
	}

	ex := exchanges[best]
	c := &Contract{
		Method:  ex.Method,
		URL:     ex.URL,
		Headers: sanitizeHeaders(ex.RequestHeaders),
		Rule:    inferPagination(ex),
	}
	if ex.RequestBody != "" {
		var body map[string]any
		if err := json.Unmarshal([]byte(ex.RequestBody), &body); err == nil {
			c.BodyTemplate = body
		}
	}

	logger.Info("discovered api contract",
		"url", c.URL, "method", c.Method, "pagination", c.Rule.Kind, "score", bestScore)
	return c, nil
}

// Run navigates a session to the target and observes its traffic until a
// contract can be built.
func Run(ctx context.Context, sess *browser.Session, targetURL string) (*Contract, error) {
	obs, err := sess.ObserveNetwork(PlausibleReviewAPI)
	if err != nil {
		return nil, fmt.Errorf("attach network observer: %w", err)
	}
	defer obs.Stop()

	if err := sess.Navigate(ctx, targetURL, navTimeout); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", targetURL, err)
	}

	// The state blob renders before the page's own review API calls finish.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(xhrWait):
	}

	return BuildContract(obs.Exchanges())
}

// PageResult is one replayed contract page.
type PageResult struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// FetchPage replays the contract for page n from inside the browser context,
// reusing the page's session and cookies via a same-origin fetch.
func FetchPage(ctx context.Context, sess *browser.Session, c *Contract, n int) (*PageResult, error) {
	req, err := c.PageRequest(n)
	if err != nil {
		return nil, err
	}

	expr, err := replayExpr(req)
	if err != nil {
		return nil, err
	}

	var result PageResult
	if err := sess.Evaluate(ctx, expr, &result, evalTimeout); err != nil {
		return nil, fmt.Errorf("replay page %d: %w", n, err)
	}
	return &result, nil
}

// replayExpr builds the in-page fetch expression for one request.
func replayExpr(req Request) (string, error) {
	init := map[string]any{
		"method":      req.Method,
		"headers":     req.Headers,
		"credentials": "include",
	}
	if len(req.Body) > 0 {
		init["body"] = string(req.Body)
	}

	initJSON, err := json.Marshal(init)
	if err != nil {
		return "", err
	}
	urlJSON, err := json.Marshal(req.URL)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`(async () => {
		const res = await fetch(%s, %s);
		let data = null;
		try { data = await res.json(); } catch (e) {}
		return { status: res.status, data: data };
	})()`, urlJSON, initJSON), nil
}
