// Package record defines the review record emitted by every extraction tier.
package record

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Review is the atomic output unit of a run. Field names follow the dataset
// schema consumers already depend on.
type Review struct {
	ProductName      *string  `json:"product_name" yaml:"product_name"`
	ProductID        *string  `json:"product_id" yaml:"product_id"`
	ReviewID         string   `json:"review_id" yaml:"review_id"`
	Rating           *float64 `json:"rating" yaml:"rating"`
	Title            *string  `json:"title" yaml:"title"`
	Text             *string  `json:"review_text" yaml:"review_text"`
	Author           *string  `json:"author" yaml:"author"`
	Date             *string  `json:"date" yaml:"date"`
	VerifiedPurchase bool     `json:"verified_purchase" yaml:"verified_purchase"`
	HelpfulCount     int      `json:"helpful_count" yaml:"helpful_count"`
	Images           []string `json:"review_images" yaml:"review_images"`
	Location         *string  `json:"location" yaml:"location"`
	SourceURL        string   `json:"url" yaml:"url"`
}

// Identity returns the record's stable identity, deriving one from content
// when the source supplied no natural id. The derived id is best-effort:
// two distinct reviews sharing author, title, text, date and rating collide.
func (r *Review) Identity() string {
	if r.ReviewID != "" {
		return r.ReviewID
	}
	return DeriveID(deref(r.Author), deref(r.Title), deref(r.Text), deref(r.Date), r.Rating)
}

// EnsureID fills ReviewID with a derived identity when it is empty.
func (r *Review) EnsureID() {
	if r.ReviewID == "" {
		r.ReviewID = r.Identity()
	}
}

// DeriveID hashes review content into a deterministic identity so the same
// underlying review found through different channels still deduplicates.
func DeriveID(author, title, text, date string, rating *float64) string {
	ratingPart := ""
	if rating != nil {
		ratingPart = fmt.Sprintf("%g", *rating)
	}
	sum := sha1.Sum([]byte(strings.Join([]string{author, title, text, date, ratingPart}, "\x1f")))
	return "drv-" + hex.EncodeToString(sum[:10])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 {
	return &f
}
