package sink

import (
	"bufio"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/scrapeloop/fkreviews/internal/record"
)

// jsonlWriter streams one JSON object per line, flushed per batch so partial
// progress survives an interrupted run.
type jsonlWriter struct {
	w *bufio.Writer
}

func newJSONLWriter(w io.Writer) *jsonlWriter {
	return &jsonlWriter{w: bufio.NewWriter(w)}
}

func (j *jsonlWriter) Append(records []record.Review) error {
	enc := json.NewEncoder(j.w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return j.w.Flush()
}

func (j *jsonlWriter) Close() error {
	return j.w.Flush()
}

// jsonWriter buffers all records and emits a single array on Close.
type jsonWriter struct {
	w     io.Writer
	items []record.Review
}

func newJSONWriter(w io.Writer) *jsonWriter {
	return &jsonWriter{w: w, items: make([]record.Review, 0)}
}

func (j *jsonWriter) Append(records []record.Review) error {
	j.items = append(j.items, records...)
	return nil
}

func (j *jsonWriter) Close() error {
	out, err := json.MarshalIndent(j.items, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = j.w.Write(out)
	return err
}

// yamlWriter buffers all records and emits a single document on Close.
type yamlWriter struct {
	w     io.Writer
	items []record.Review
}

func newYAMLWriter(w io.Writer) *yamlWriter {
	return &yamlWriter{w: w, items: make([]record.Review, 0)}
}

func (y *yamlWriter) Append(records []record.Review) error {
	y.items = append(y.items, records...)
	return nil
}

func (y *yamlWriter) Close() error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(y.items); err != nil {
		return err
	}
	return enc.Close()
}
