// Package pagestate extracts the JSON application state embedded in
// server-rendered pages. The blob is assigned to a global inside a script
// statement, so it cannot be bounded by an HTML or JS parser; a single
// forward scan that tracks brace depth and string state finds its true end.
package pagestate

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/scrapeloop/fkreviews/internal/logger"
)

// ErrStateNotFound reports that the page carries no parseable embedded state.
var ErrStateNotFound = errors.New("embedded state not found")

// Markers assigning the state blob, tried in order.
var stateMarkers = []string{
	"window.__INITIAL_STATE__",
	"window.__PRELOADED_STATE__",
	"__INITIAL_STATE__ =",
}

// Extract locates the embedded state blob in raw HTML and parses it.
// A missing marker, an unbalanced literal, or a JSON parse failure all
// report ErrStateNotFound; none of them are fatal to the caller.
func Extract(html string) (any, error) {
	for _, marker := range stateMarkers {
		idx := strings.Index(html, marker)
		if idx < 0 {
			continue
		}

		span, ok := scanObjectLiteral(html[idx+len(marker):])
		if !ok {
			logger.Debug("embedded state marker found but literal unbalanced", "marker", marker)
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(span), &v); err != nil {
			logger.Debug("embedded state literal is not valid JSON", "marker", marker, "error", err)
			continue
		}
		return v, nil
	}
	return nil, ErrStateNotFound
}

// scanObjectLiteral finds the first '{' in s and returns the slice up to the
// brace that closes it. Braces and quotes inside string literals are ignored,
// honoring backslash escapes, so values like "}{" or "\"}" never end the scan.
func scanObjectLiteral(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
