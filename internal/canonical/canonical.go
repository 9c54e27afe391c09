// Package canonical normalizes Flipkart URLs into review-listing targets.
package canonical

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Target is the canonical form of one input URL.
type Target struct {
	URL       string
	ProductID string // empty when unknown
	ListingID string // empty when unknown
	Slug      string
}

var (
	itemTokenRe   = regexp.MustCompile(`(?i)(itm[a-z0-9]+)`)
	productPathRe = regexp.MustCompile(`(?i)^/([^/]+)/p/(itm[a-z0-9]+)`)
	reviewPathRe  = regexp.MustCompile(`(?i)^/([^/]+)/product-reviews/(itm[a-z0-9]+)`)
	productIDRe   = regexp.MustCompile(`^[A-Za-z0-9]{10,24}$`)
)

// Canonicalize turns an arbitrary product or review URL into its review-listing
// form and extracts whatever stable identifiers the URL carries. It is
// idempotent: canonicalizing a canonical URL returns it unchanged apart from
// stripping the page-offset parameter.
func Canonicalize(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target url %q: %w", raw, err)
	}

	productID := validProductID(u.Query().Get("pid"))
	listingID := u.Query().Get("lid")

	// Already a review listing: keep verbatim, drop only the page offset.
	if m := reviewPathRe.FindStringSubmatch(u.Path); m != nil {
		q := u.Query()
		q.Del("page")
		u.RawQuery = q.Encode()
		return Target{URL: u.String(), ProductID: productID, ListingID: listingID, Slug: m[1]}, nil
	}

	// Product detail page: rewrite to the listing path, carrying identifiers.
	if m := productPathRe.FindStringSubmatch(u.Path); m != nil {
		return Target{
			URL:       listingURL(u, m[1], m[2], productID, listingID),
			ProductID: productID,
			ListingID: listingID,
			Slug:      m[1],
		}, nil
	}

	// No recognized layout but an item token somewhere in the path: synthesize
	// a listing path using the first segment as slug.
	if m := itemTokenRe.FindStringSubmatch(u.Path); m != nil {
		slug := firstSegment(u.Path)
		if slug == "" {
			slug = "product"
		}
		return Target{
			URL:       listingURL(u, slug, m[1], productID, listingID),
			ProductID: productID,
			ListingID: listingID,
			Slug:      slug,
		}, nil
	}

	return Target{URL: raw, ProductID: productID, ListingID: listingID}, nil
}

// ProductName recovers a human-readable product name from a listing slug.
func (t Target) ProductName() string {
	if t.Slug == "" {
		return ""
	}
	return strings.ReplaceAll(t.Slug, "-", " ")
}

// ItemToken extracts the itm token from the target URL, if any.
func (t Target) ItemToken() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	if m := itemTokenRe.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

func listingURL(src *url.URL, slug, token, pid, lid string) string {
	u := url.URL{
		Scheme: src.Scheme,
		Host:   src.Host,
		Path:   fmt.Sprintf("/%s/product-reviews/%s", slug, token),
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		u.Host = "www.flipkart.com"
	}
	q := url.Values{}
	if pid != "" {
		q.Set("pid", pid)
	}
	if lid != "" {
		q.Set("lid", lid)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// validProductID accepts an identifier only when it matches the site's pid
// format; anything else is treated as unknown rather than an error.
func validProductID(pid string) string {
	if productIDRe.MatchString(pid) {
		return pid
	}
	return ""
}

func firstSegment(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && !itemTokenRe.MatchString(seg) {
			return seg
		}
	}
	return ""
}
