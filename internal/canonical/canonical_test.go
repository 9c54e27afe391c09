package canonical

import (
	"strings"
	"testing"
)

func TestCanonicalize_ProductURLRewritten(t *testing.T) {
	got, err := Canonicalize("https://www.flipkart.com/acme-phone-x2/p/itmf3a9b8c7d?pid=MOBF3A9B8C7DQX1&lid=LSTMOB123")
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}

	if !strings.Contains(got.URL, "/acme-phone-x2/product-reviews/itmf3a9b8c7d") {
		t.Errorf("expected review listing path, got %q", got.URL)
	}
	if got.ProductID != "MOBF3A9B8C7DQX1" {
		t.Errorf("ProductID = %q", got.ProductID)
	}
	if got.ListingID != "LSTMOB123" {
		t.Errorf("ListingID = %q", got.ListingID)
	}
}

func TestCanonicalize_ListingURLKeptVerbatim(t *testing.T) {
	in := "https://www.flipkart.com/acme-phone-x2/product-reviews/itmf3a9b8c7d?sortOrder=MOST_HELPFUL"
	got, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if got.URL != in {
		t.Errorf("listing URL should be unchanged, got %q", got.URL)
	}
}

func TestCanonicalize_StripsPageParam(t *testing.T) {
	got, err := Canonicalize("https://www.flipkart.com/x/product-reviews/itmabc123?page=4&sortOrder=MOST_RECENT")
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if strings.Contains(got.URL, "page=") {
		t.Errorf("page param should be stripped, got %q", got.URL)
	}
	if !strings.Contains(got.URL, "sortOrder=MOST_RECENT") {
		t.Errorf("other params should survive, got %q", got.URL)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://www.flipkart.com/acme-phone-x2/p/itmf3a9b8c7d?pid=MOBF3A9B8C7DQX1",
		"https://www.flipkart.com/acme-phone-x2/product-reviews/itmf3a9b8c7d",
		"https://www.flipkart.com/widgets/itmzz9y8x7w6",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("Canonicalize(%q) error: %v", in, err)
		}
		twice, err := Canonicalize(once.URL)
		if err != nil {
			t.Fatalf("re-Canonicalize(%q) error: %v", once.URL, err)
		}
		if once.URL != twice.URL {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once.URL, twice.URL)
		}
	}
}

func TestCanonicalize_TokenSynthesis(t *testing.T) {
	got, err := Canonicalize("https://www.flipkart.com/widgets/gadgets/itmzz9y8x7w6/details")
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if !strings.Contains(got.URL, "/widgets/product-reviews/itmzz9y8x7w6") {
		t.Errorf("expected synthesized listing path, got %q", got.URL)
	}
}

func TestCanonicalize_UnrecognizedReturnedUnchanged(t *testing.T) {
	in := "https://www.flipkart.com/offers-store"
	got, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if got.URL != in {
		t.Errorf("unrecognized URL should pass through, got %q", got.URL)
	}
}

func TestCanonicalize_InvalidPidIgnored(t *testing.T) {
	got, err := Canonicalize("https://www.flipkart.com/a/p/itmabc?pid=nope!")
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if got.ProductID != "" {
		t.Errorf("invalid pid should be treated as unknown, got %q", got.ProductID)
	}
}

func TestTarget_ProductName(t *testing.T) {
	got, _ := Canonicalize("https://www.flipkart.com/acme-phone-x2/p/itmf3a9b8c7d")
	if got.ProductName() != "acme phone x2" {
		t.Errorf("ProductName() = %q", got.ProductName())
	}
}
