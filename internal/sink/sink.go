// Package sink handles durable output of review records and debug blobs.
package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/scrapeloop/fkreviews/internal/record"
)

// Format represents output format types.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Writer receives record batches in discovery order.
type Writer interface {
	// Append writes a batch of records.
	Append(records []record.Review) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format) (Writer, error) {
	switch format {
	case FormatJSONL:
		return newJSONLWriter(w), nil
	case FormatJSON:
		return newJSONWriter(w), nil
	case FormatYAML:
		return newYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Open creates a writer backed by a file, or stdout when path is empty.
func Open(path string, format Format) (Writer, error) {
	if path == "" {
		return NewWriter(os.Stdout, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w, err := NewWriter(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileWriter{Writer: w, f: f}, nil
}

type fileWriter struct {
	Writer
	f *os.File
}

func (w *fileWriter) Close() error {
	err := w.Writer.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
