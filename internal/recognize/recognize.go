// Package recognize finds review records inside arbitrary JSON values by
// structural shape, independent of which channel produced the JSON.
package recognize

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/scrapeloop/fkreviews/internal/canonical"
	"github.com/scrapeloop/fkreviews/internal/record"
)

// High-resolution values substituted into image URL templates.
const (
	imageWidth   = "1440"
	imageHeight  = "1440"
	imageQuality = "90"
)

// Field-name aliases used by loose matching. Ad-hoc API payloads do not share
// the page-state schema, so loose mode keys on shape instead of a discriminator.
var (
	idAliases       = []string{"id", "reviewId", "review_id"}
	textAliases     = []string{"text", "reviewText", "review_text", "comment", "description", "title"}
	ratingAliases   = []string{"rating", "ratingValue", "rating_value", "stars", "overallRating"}
	titleAliases    = []string{"title", "reviewTitle", "headline"}
	authorAliases   = []string{"author", "authorName", "reviewer", "name", "userName"}
	dateAliases     = []string{"created", "date", "createdAt", "reviewDate", "time"}
	helpfulAliases  = []string{"helpfulCount", "helpful_count", "upvotes", "votes", "helpful"}
	verifiedAliases = []string{"certifiedBuyer", "verifiedPurchase", "verified_purchase", "isVerified"}
	locationAliases = []string{"location", "city", "place"}
	imageAliases    = []string{"images", "reviewImages", "imageUrls", "media"}
)

// Records extracts every review-shaped node from v. Strict matching (type
// discriminator plus string id) runs first; when it yields nothing, loose
// shape matching runs. Results are deduplicated by identity within this call.
func Records(v any, srcURL string) []record.Review {
	fallbackName, fallbackID := sourceFallback(srcURL)

	recs := collect(v, srcURL, fallbackName, fallbackID, matchStrict)
	if len(recs) == 0 {
		recs = collect(v, srcURL, fallbackName, fallbackID, matchLoose)
	}
	return recs
}

type matcher func(obj map[string]any) bool

func collect(v any, srcURL, fallbackName, fallbackID string, match matcher) []record.Review {
	var out []record.Review
	seen := make(map[string]struct{})

	walk(v, func(obj map[string]any) {
		if !match(obj) {
			return
		}
		rec := buildRecord(obj, srcURL, fallbackName, fallbackID)
		id := rec.Identity()
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		rec.ReviewID = id
		out = append(out, rec)
	})
	return out
}

// walk visits every object in a decoded JSON tree depth-first. JSON values
// have no back-references, so no cycle tracking is needed.
func walk(v any, visit func(map[string]any)) {
	switch node := v.(type) {
	case map[string]any:
		visit(node)
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(node[k], visit)
		}
	case []any:
		for _, child := range node {
			walk(child, visit)
		}
	}
}

// matchStrict accepts objects carrying the page-state type discriminator and
// a non-empty string identity.
func matchStrict(obj map[string]any) bool {
	disc := ""
	if s, ok := obj["type"].(string); ok {
		disc = s
	} else if s, ok := obj["__typename"].(string); ok {
		disc = s
	}
	if !strings.Contains(strings.ToLower(disc), "review") {
		return false
	}
	id, ok := obj["id"].(string)
	return ok && id != ""
}

// matchLoose accepts any object that simultaneously has an identity-like
// string, a text-or-title-like string, and a finite rating-like number.
func matchLoose(obj map[string]any) bool {
	if stringField(obj, idAliases) == "" {
		return false
	}
	if stringField(obj, textAliases) == "" {
		return false
	}
	_, ok := numberField(obj, ratingAliases)
	return ok
}

func buildRecord(obj map[string]any, srcURL, fallbackName, fallbackID string) record.Review {
	rec := record.Review{
		ReviewID:  stringField(obj, idAliases),
		Title:     record.StrPtr(stringField(obj, titleAliases)),
		Text:      record.StrPtr(stringField(obj, textAliases)),
		Author:    record.StrPtr(stringField(obj, authorAliases)),
		Date:      record.StrPtr(stringField(obj, dateAliases)),
		Location:  record.StrPtr(stringField(obj, locationAliases)),
		Images:    imageURLs(obj),
		SourceURL: srcURL,
	}

	if n, ok := numberField(obj, ratingAliases); ok && n >= 1 && n <= 5 {
		rec.Rating = record.FloatPtr(n)
	}
	if n, ok := numberField(obj, helpfulAliases); ok && n > 0 {
		rec.HelpfulCount = int(n)
	}
	rec.VerifiedPurchase = boolField(obj, verifiedAliases)

	// A loose text alias can land the title in Text; derive a title from the
	// first short sentence when none was present.
	if rec.Title == nil && rec.Text != nil {
		if first, _, _ := strings.Cut(*rec.Text, "."); first != "" && len(first) < 100 {
			rec.Title = record.StrPtr(strings.TrimSpace(first))
		}
	}

	if name := stringField(obj, []string{"productName", "product_name", "productTitle"}); name != "" {
		rec.ProductName = record.StrPtr(name)
	} else {
		rec.ProductName = record.StrPtr(fallbackName)
	}
	if pid := stringField(obj, []string{"productId", "product_id", "pid"}); pid != "" {
		rec.ProductID = record.StrPtr(pid)
	} else {
		rec.ProductID = record.StrPtr(fallbackID)
	}

	return rec
}

func stringField(obj map[string]any, aliases []string) string {
	for _, k := range aliases {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// numberField returns the first alias whose value coerces to a finite number;
// an alias that is present but uncoercible does not shadow later ones.
func numberField(obj map[string]any, aliases []string) (float64, bool) {
	for _, k := range aliases {
		v, present := obj[k]
		if !present {
			continue
		}
		if n, ok := toNumber(v); ok {
			return n, true
		}
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func boolField(obj map[string]any, aliases []string) bool {
	for _, k := range aliases {
		if b, ok := obj[k].(bool); ok {
			return b
		}
	}
	return false
}

// imageURLs collects image URLs from any image-like field, expanding the
// site's size templates and deduplicating while preserving order.
func imageURLs(obj map[string]any) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(raw string) {
		u := expandImageTemplate(raw)
		if u == "" || !strings.HasPrefix(u, "http") {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, k := range imageAliases {
		switch v := obj[k].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				} else if m, ok := item.(map[string]any); ok {
					add(stringField(m, []string{"url", "imageUrl", "src"}))
				}
			}
		case string:
			add(v)
		}
	}
	return out
}

func expandImageTemplate(u string) string {
	r := strings.NewReplacer(
		"{@width}", imageWidth,
		"{@height}", imageHeight,
		"{@quality}", imageQuality,
	)
	return r.Replace(strings.TrimSpace(u))
}

// sourceFallback derives product context from the source URL for records
// that omit their own.
func sourceFallback(srcURL string) (name, id string) {
	t, err := canonical.Canonicalize(srcURL)
	if err != nil {
		return "", ""
	}
	return t.ProductName(), firstNonEmpty(t.ProductID, t.ItemToken())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
