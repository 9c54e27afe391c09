// Package discover watches one browser session's network traffic, picks the
// exchange that most looks like the reviews API, and turns it into a
// replayable paginated request contract.
package discover

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/scrapeloop/fkreviews/internal/browser"
)

// ErrNoContract reports that no plausible reviews API exchange was observed.
var ErrNoContract = errors.New("no reviews api contract discovered")

// PaginationKind tags how a contract advances pages.
type PaginationKind int

const (
	PaginateNone PaginationKind = iota
	PaginateQueryPage
	PaginateQueryOffset
	PaginateBodyPage
	PaginateBodyOffset
)

// PaginationRule describes how to request page n of a contract.
type PaginationRule struct {
	Kind     PaginationKind
	Key      string // page or offset parameter/field name
	LimitKey string // offset variants only
	Step     int    // offset increment per page; 1 for page variants
	Base     int    // offset observed on the captured request
}

// offsetFor maps 1-based page n onto the observed request's offset sequence.
func (r PaginationRule) offsetFor(n int) int {
	return r.Base + (n-1)*r.Step
}

// Contract is a replayable description of the discovered API request.
type Contract struct {
	Method       string
	URL          string
	Headers      map[string]string
	BodyTemplate map[string]any // nil for body-less requests
	Rule         PaginationRule
}

// Request is one concrete page request synthesized from a contract.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// MultiPage reports whether the contract can advance past its first page.
func (c *Contract) MultiPage() bool {
	return c.Rule.Kind != PaginateNone
}

// PageRequest synthesizes the request for 1-based page n, leaving every
// other parameter of the observed exchange unchanged.
func (c *Contract) PageRequest(n int) (Request, error) {
	if n < 1 {
		return Request{}, fmt.Errorf("page %d out of range", n)
	}

	req := Request{Method: c.Method, URL: c.URL, Headers: c.Headers}

	switch c.Rule.Kind {
	case PaginateQueryPage:
		u, err := setQueryParam(c.URL, c.Rule.Key, strconv.Itoa(n))
		if err != nil {
			return Request{}, err
		}
		req.URL = u

	case PaginateQueryOffset:
		u, err := setQueryParam(c.URL, c.Rule.Key, strconv.Itoa(c.Rule.offsetFor(n)))
		if err != nil {
			return Request{}, err
		}
		req.URL = u

	case PaginateBodyPage, PaginateBodyOffset:
		body := make(map[string]any, len(c.BodyTemplate))
		for k, v := range c.BodyTemplate {
			body[k] = v
		}
		if c.Rule.Kind == PaginateBodyPage {
			body[c.Rule.Key] = n
		} else {
			body[c.Rule.Key] = c.Rule.offsetFor(n)
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return Request{}, fmt.Errorf("encode body: %w", err)
		}
		req.Body = encoded

	case PaginateNone:
		if n > 1 {
			return Request{}, fmt.Errorf("contract has no pagination beyond page 1")
		}
	}

	if req.Body == nil && c.BodyTemplate != nil {
		encoded, err := json.Marshal(c.BodyTemplate)
		if err != nil {
			return Request{}, fmt.Errorf("encode body: %w", err)
		}
		req.Body = encoded
	}
	return req, nil
}

func setQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("contract url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Request headers worth replaying. Cookie-, origin- and connection-bearing
// headers are dropped; the browser session supplies those on replay.
func sanitizeHeaders(raw map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range raw {
		lower := strings.ToLower(k)
		switch {
		case lower == "accept", lower == "accept-language", lower == "content-type":
			out[lower] = v
		case strings.HasPrefix(lower, "x-"):
			out[lower] = v
		}
	}
	return out
}

// inferPagination inspects the observed request (never the response) for a
// pagination signal: a page query parameter, an offset/limit pair, or their
// JSON body equivalents. Absent a signal the contract is single-page.
func inferPagination(ex browser.Exchange) PaginationRule {
	if u, err := url.Parse(ex.URL); err == nil {
		q := u.Query()
		if q.Has("page") {
			return PaginationRule{Kind: PaginateQueryPage, Key: "page", Step: 1}
		}
		if q.Has("offset") {
			step := 10
			if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
				step = limit
			}
			base, _ := strconv.Atoi(q.Get("offset"))
			return PaginationRule{Kind: PaginateQueryOffset, Key: "offset", LimitKey: "limit", Step: step, Base: base}
		}
	}

	if ex.RequestBody != "" {
		var body map[string]any
		if err := json.Unmarshal([]byte(ex.RequestBody), &body); err == nil {
			if _, ok := body["page"]; ok {
				return PaginationRule{Kind: PaginateBodyPage, Key: "page", Step: 1}
			}
			if raw, ok := body["offset"]; ok {
				step := 10
				if limit, ok := body["limit"].(float64); ok && limit > 0 {
					step = int(limit)
				}
				base := 0
				if f, ok := raw.(float64); ok {
					base = int(f)
				}
				return PaginationRule{Kind: PaginateBodyOffset, Key: "offset", LimitKey: "limit", Step: step, Base: base}
			}
		}
	}

	return PaginationRule{Kind: PaginateNone}
}
