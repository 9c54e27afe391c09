// Package accumulate owns run-wide deduplication and batched delivery of
// records to the output sink. It is the only path to the sink.
package accumulate

import (
	"sync"

	"github.com/scrapeloop/fkreviews/internal/logger"
	"github.com/scrapeloop/fkreviews/internal/record"
)

// BatchSize is the flush threshold for the output buffer.
const BatchSize = 25

// Sink receives flushed record batches.
type Sink interface {
	Append(records []record.Review) error
}

// State tracks seen identities and buffers records for the whole run.
// Browser and discovery tiers deliver records from CDP callbacks, so all
// mutation is funneled through one mutex.
type State struct {
	mu     sync.Mutex
	sink   Sink
	seen   map[string]struct{}
	buffer []record.Review
	total  int
	wanted int
}

// New creates accumulation state for a run targeting wanted records.
func New(sink Sink, wanted int) *State {
	if wanted < 1 {
		wanted = 1
	}
	return &State{
		sink:   sink,
		seen:   make(map[string]struct{}),
		wanted: wanted,
	}
}

// Add stores a record unless its identity was already seen or the quota is
// met. It reports whether the record was accepted. Duplicates are discarded
// silently; the seen-set survives flushes so the same review discovered via
// a different tier still counts once.
func (s *State) Add(rec record.Review) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total >= s.wanted {
		return false
	}

	rec.EnsureID()
	if _, dup := s.seen[rec.ReviewID]; dup {
		return false
	}
	s.seen[rec.ReviewID] = struct{}{}
	s.buffer = append(s.buffer, rec)
	s.total++
	return true
}

// AddAll adds records in order, returning how many were accepted.
func (s *State) AddAll(recs []record.Review) int {
	accepted := 0
	for _, rec := range recs {
		if s.Add(rec) {
			accepted++
		}
	}
	return accepted
}

// MaybeFlush delivers the buffer to the sink once it reaches the batch
// threshold, or unconditionally when force is set and the buffer is
// non-empty. Delivery is chunked so no single Append exceeds BatchSize.
// Flushing clears the buffer, never the seen-set.
func (s *State) MaybeFlush(force bool) error {
	s.mu.Lock()
	if len(s.buffer) == 0 || (!force && len(s.buffer) < BatchSize) {
		s.mu.Unlock()
		return nil
	}
	pending := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	for start := 0; start < len(pending); start += BatchSize {
		end := start + BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		logger.Debug("flushing record batch", "count", end-start)
		if err := s.sink.Append(pending[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Done reports whether the wanted quota has been met.
func (s *State) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total >= s.wanted
}

// Total returns how many records have been accepted so far.
func (s *State) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Wanted returns the immutable run quota.
func (s *State) Wanted() int {
	return s.wanted
}
