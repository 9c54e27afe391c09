package browser

import (
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/scrapeloop/fkreviews/internal/logger"
)

// Exchange is one observed request/response pair.
type Exchange struct {
	Method         string
	URL            string
	RequestHeaders map[string]string
	RequestBody    string
	Status         int
	ResponseBody   []byte
}

// Observer collects network exchanges matching a URL filter. Collection is
// bounded: Stop ends it deterministically, and closing the session does too.
type Observer struct {
	mu        sync.Mutex
	pending   map[network.RequestID]*Exchange
	collected []Exchange
	stopped   atomic.Bool
}

// ObserveNetwork starts capturing matching exchanges on the session's tab.
// Bodies are fetched asynchronously over CDP as responses arrive.
func (s *Session) ObserveNetwork(match func(url string) bool) (*Observer, error) {
	if err := chromedp.Run(s.tabCtx, network.Enable()); err != nil {
		return nil, err
	}

	o := &Observer{pending: make(map[network.RequestID]*Exchange)}
	execCtx := s.executor()

	chromedp.ListenTarget(s.tabCtx, func(ev any) {
		if o.stopped.Load() {
			return
		}
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if !match(e.Request.URL) {
				return
			}
			o.mu.Lock()
			o.pending[e.RequestID] = &Exchange{
				Method:         e.Request.Method,
				URL:            e.Request.URL,
				RequestHeaders: flattenHeaders(e.Request.Headers),
				RequestBody:    postData(e.Request),
			}
			o.mu.Unlock()

		case *network.EventResponseReceived:
			o.mu.Lock()
			ex, tracked := o.pending[e.RequestID]
			o.mu.Unlock()
			if !tracked {
				return
			}
			ex.Status = int(e.Response.Status)

			// The body is only retrievable once loading finished; fetching
			// from a goroutine keeps the event loop unblocked.
			go func(id network.RequestID) {
				body, err := network.GetResponseBody(id).Do(execCtx)
				if err != nil {
					logger.Debug("response body unavailable", "url", ex.URL, "error", err)
				}
				o.mu.Lock()
				defer o.mu.Unlock()
				if o.stopped.Load() {
					return
				}
				ex.ResponseBody = body
				o.collected = append(o.collected, *ex)
				delete(o.pending, id)
			}(e.RequestID)
		}
	})

	return o, nil
}

// Exchanges returns a snapshot of the completed exchanges so far.
func (o *Observer) Exchanges() []Exchange {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Exchange, len(o.collected))
	copy(out, o.collected)
	return out
}

// Stop ends collection; later events are ignored.
func (o *Observer) Stop() {
	o.stopped.Store(true)
}

func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			out[strings.ToLower(k)] = s
		}
	}
	return out
}

// postData reassembles the request body; CDP delivers it base64-encoded.
func postData(req *network.Request) string {
	var parts []string
	for _, entry := range req.PostDataEntries {
		if entry.Bytes == "" {
			continue
		}
		if decoded, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
			parts = append(parts, string(decoded))
		} else {
			parts = append(parts, entry.Bytes)
		}
	}
	return strings.Join(parts, "")
}
