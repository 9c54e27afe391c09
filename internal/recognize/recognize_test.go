package recognize

import (
	"encoding/json"
	"testing"
)

const srcURL = "https://www.flipkart.com/acme-phone-x2/product-reviews/itmf3a9b8c7d?pid=MOBF3A9B8C7DQX1"

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("test payload invalid: %v", err)
	}
	return v
}

func TestRecords_StrictByDiscriminator(t *testing.T) {
	v := decode(t, `{
		"pageData": {
			"widgets": [
				{"type": "ProductReviewValue", "id": "rev-1", "rating": 5,
				 "text": "Excellent build quality. Would buy again.",
				 "author": "Ravi", "created": "Mar, 2024",
				 "certifiedBuyer": true, "helpfulCount": 12},
				{"type": "BannerValue", "id": "ban-1", "title": "Sale"}
			]
		}
	}`)

	recs := Records(v, srcURL)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	r := recs[0]
	if r.ReviewID != "rev-1" {
		t.Errorf("ReviewID = %q", r.ReviewID)
	}
	if r.Rating == nil || *r.Rating != 5 {
		t.Errorf("Rating = %v", r.Rating)
	}
	if !r.VerifiedPurchase {
		t.Error("VerifiedPurchase should be true")
	}
	if r.HelpfulCount != 12 {
		t.Errorf("HelpfulCount = %d", r.HelpfulCount)
	}
	if r.Title == nil || *r.Title != "Excellent build quality" {
		t.Errorf("derived Title = %v", r.Title)
	}
	if r.ProductName == nil || *r.ProductName != "acme phone x2" {
		t.Errorf("fallback ProductName = %v", r.ProductName)
	}
	if r.ProductID == nil || *r.ProductID != "MOBF3A9B8C7DQX1" {
		t.Errorf("fallback ProductID = %v", r.ProductID)
	}
}

func TestRecords_LooseWithoutDiscriminator(t *testing.T) {
	v := decode(t, `{
		"data": {"reviews": [
			{"review_id": "x9", "review_text": "Battery drains fast", "rating": "2",
			 "reviewer": "Asha", "verified_purchase": true}
		]}
	}`)

	recs := Records(v, srcURL)
	if len(recs) != 1 {
		t.Fatalf("expected 1 loose record, got %d", len(recs))
	}
	if recs[0].ReviewID != "x9" {
		t.Errorf("ReviewID = %q", recs[0].ReviewID)
	}
	if recs[0].Rating == nil || *recs[0].Rating != 2 {
		t.Errorf("string rating should coerce, got %v", recs[0].Rating)
	}
	if !recs[0].VerifiedPurchase {
		t.Error("verified_purchase alias not honored")
	}
}

func TestRecords_StrictWinsOverLoose(t *testing.T) {
	// One strict node present: loose-only nodes must not be mixed in.
	v := decode(t, `{
		"a": {"type": "ProductReviewValue", "id": "strict-1", "text": "ok", "rating": 4},
		"b": {"id": "loose-1", "text": "also ok", "rating": 3}
	}`)

	recs := Records(v, srcURL)
	if len(recs) != 1 || recs[0].ReviewID != "strict-1" {
		t.Fatalf("strict mode should win, got %+v", recs)
	}
}

func TestRecords_DuplicateNodeDedupedLocally(t *testing.T) {
	v := decode(t, `{
		"list": [{"type": "review", "id": "dup", "text": "hi", "rating": 4}],
		"byId": {"dup": {"type": "review", "id": "dup", "text": "hi", "rating": 4}}
	}`)

	recs := Records(v, srcURL)
	if len(recs) != 1 {
		t.Errorf("same identity referenced twice should yield one record, got %d", len(recs))
	}
}

func TestRecords_NonFiniteRatingRejected(t *testing.T) {
	v := decode(t, `{"id": "r1", "text": "meh", "rating": "not-a-number"}`)
	if recs := Records(v, srcURL); len(recs) != 0 {
		t.Errorf("non-numeric rating should fail loose matching, got %d records", len(recs))
	}
}

func TestRecords_RatingFallsThroughAliases(t *testing.T) {
	// An uncoercible value in an earlier alias must not shadow a later one.
	v := decode(t, `{"type": "review", "id": "r1", "text": "fine", "rating": "N/A", "stars": 4}`)

	recs := Records(v, srcURL)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Rating == nil || *recs[0].Rating != 4 {
		t.Errorf("Rating = %v, want fallback to stars alias", recs[0].Rating)
	}
}

func TestRecords_RatingOutOfRangeDropped(t *testing.T) {
	v := decode(t, `{"type": "review", "id": "r1", "text": "spam", "rating": 99}`)
	recs := Records(v, srcURL)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Rating != nil {
		t.Errorf("rating outside 1..5 should become nil, got %v", *recs[0].Rating)
	}
}

func TestRecords_ImageTemplateExpansion(t *testing.T) {
	v := decode(t, `{
		"type": "review", "id": "r1", "text": "with pics", "rating": 4,
		"images": [
			"https://img.example.com/a.jpg?q={@quality}&w={@width}&h={@height}",
			"https://img.example.com/a.jpg?q={@quality}&w={@width}&h={@height}",
			"https://img.example.com/b.jpg"
		]
	}`)

	recs := Records(v, srcURL)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	imgs := recs[0].Images
	if len(imgs) != 2 {
		t.Fatalf("expected 2 deduplicated images, got %v", imgs)
	}
	want := "https://img.example.com/a.jpg?q=90&w=1440&h=1440"
	if imgs[0] != want {
		t.Errorf("template not expanded: %q", imgs[0])
	}
}

func TestRecords_EmptyTreeYieldsNothing(t *testing.T) {
	if recs := Records(decode(t, `{"a": [1, 2, 3], "b": null}`), srcURL); len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}
