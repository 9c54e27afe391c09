package sink

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scrapeloop/fkreviews/internal/record"
)

func sample(id string) record.Review {
	return record.Review{
		ReviewID:  id,
		Rating:    record.FloatPtr(4),
		Text:      record.StrPtr("solid product"),
		SourceURL: "https://www.flipkart.com/x/product-reviews/itmabc",
	}
}

func TestJSONLWriter_OneObjectPerLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, FormatJSONL)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Append([]record.Review{sample("a"), sample("b")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var rec record.Review
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if rec.ReviewID != "a" {
		t.Errorf("ReviewID = %q", rec.ReviewID)
	}
}

func TestJSONWriter_SingleArrayOnClose(t *testing.T) {
	buf := &bytes.Buffer{}
	w, _ := NewWriter(buf, FormatJSON)

	_ = w.Append([]record.Review{sample("a")})
	_ = w.Append([]record.Review{sample("b")})
	if buf.Len() != 0 {
		t.Error("JSON writer should buffer until Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var recs []record.Review
	if err := json.Unmarshal(buf.Bytes(), &recs); err != nil {
		t.Fatalf("output not a JSON array: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records, got %d", len(recs))
	}
}

func TestYAMLWriter_EmitsDocument(t *testing.T) {
	buf := &bytes.Buffer{}
	w, _ := NewWriter(buf, FormatYAML)
	_ = w.Append([]record.Review{sample("y1")})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !strings.Contains(buf.String(), "review_id: y1") {
		t.Errorf("yaml output missing record: %q", buf.String())
	}
}

func TestNewWriter_UnknownFormat(t *testing.T) {
	if _, err := NewWriter(&bytes.Buffer{}, Format("xml")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestDebugStore_PutSanitizesKey(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDebugStore(dir)
	if err != nil {
		t.Fatalf("NewDebugStore: %v", err)
	}

	d.Put("blocked/www.flipkart.com page=1", []byte("<html>denied</html>"))

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 blob, got %d (err %v)", len(entries), err)
	}
	name := entries[0].Name()
	if strings.ContainsAny(name, "/= ") {
		t.Errorf("key not sanitized: %q", name)
	}
	blob, _ := os.ReadFile(filepath.Join(dir, name))
	if string(blob) != "<html>denied</html>" {
		t.Errorf("blob content mismatch: %q", blob)
	}
}

func TestDebugStore_DisabledIsNoop(t *testing.T) {
	d, err := NewDebugStore("")
	if err != nil {
		t.Fatalf("NewDebugStore: %v", err)
	}
	d.Put("anything", []byte("x")) // must not panic or write
}
