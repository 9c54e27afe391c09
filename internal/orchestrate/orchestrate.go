// Package orchestrate runs the per-target escalation state machine that ties
// every extraction tier together.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/scrapeloop/fkreviews/internal/accumulate"
	"github.com/scrapeloop/fkreviews/internal/canonical"
	"github.com/scrapeloop/fkreviews/internal/config"
	"github.com/scrapeloop/fkreviews/internal/fetchclient"
	"github.com/scrapeloop/fkreviews/internal/htmlpage"
	"github.com/scrapeloop/fkreviews/internal/logger"
	"github.com/scrapeloop/fkreviews/internal/sink"
)

// deadlineMargin is the safety window before the run deadline within which
// no new page fetch or navigation starts.
const deadlineMargin = 15 * time.Second

// Tier enumerates the escalation states, cheapest first.
type Tier int

const (
	TierDiscoverAndReplay Tier = iota
	TierDirectAPI
	TierHTMLPaging
	TierBrowserPaging
	TierDone
)

func (t Tier) String() string {
	switch t {
	case TierDiscoverAndReplay:
		return "discover-and-replay"
	case TierDirectAPI:
		return "direct-api"
	case TierHTMLPaging:
		return "html-paging"
	case TierBrowserPaging:
		return "browser-paging"
	default:
		return "done"
	}
}

// target is the mutable per-URL state. Identifiers and the canonical URL can
// improve mid-run as tiers learn more.
type target struct {
	input            string
	canonical        canonical.Target
	consecutiveEmpty int
	tier             Tier
}

// pageFetcher retrieves listing pages over HTTP (the HTML tier).
type pageFetcher interface {
	Fetch(ctx context.Context, url string) (*htmlpage.Page, error)
}

// apiFetcher issues direct API requests (the direct-API tier).
type apiFetcher interface {
	Fetch(ctx context.Context, url string, opts fetchclient.Options) (*fetchclient.Response, error)
}

// browserFactory opens browser-backed tier operations for one target. The
// session is owned by the current target and closed before the next starts.
type browserFactory func(ctx context.Context) (browserOps, error)

// Orchestrator coordinates one run across all targets.
type Orchestrator struct {
	cfg      config.Config
	acc      *accumulate.State
	debug    *sink.DebugStore
	pages    pageFetcher
	api      apiFetcher
	browser  browserFactory
	deadline time.Time
}

// New wires an orchestrator from real collaborators.
func New(cfg config.Config, acc *accumulate.State, debug *sink.DebugStore, rotator *fetchclient.Rotator) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		acc:     acc,
		debug:   debug,
		pages:   htmlpage.NewFetcher(rotator, cfg.DirectRetry),
		api:     fetchclient.New(rotator, cfg.DirectRetry),
		browser: liveBrowserFactory,
	}
}

// Run processes every start URL sequentially, forces the final flush, and
// reports the no-results condition. A single target's failure never ends
// the run.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.deadline = time.Now().Add(o.cfg.Timeout)

	var attempted []string
	for _, raw := range o.cfg.StartURLs {
		if o.acc.Done() {
			logger.Info("quota reached, skipping remaining targets")
			break
		}
		if o.nearDeadline(ctx) {
			logger.Warn("deadline reached, skipping remaining targets")
			break
		}

		t, err := o.newTarget(raw)
		if err != nil {
			logger.Warn("skipping invalid start url", "url", raw, "error", err)
			continue
		}
		attempted = append(attempted, t.canonical.URL)

		if err := o.processTarget(ctx, t); err != nil {
			logger.Warn("target failed", "url", t.canonical.URL, "error", err)
		}
	}

	if err := o.acc.MaybeFlush(true); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	if o.acc.Total() == 0 {
		logger.Warn("no reviews extracted from any target", "attempted", attempted)
	} else {
		logger.Info("run complete", "saved", o.acc.Total(), "wanted", o.acc.Wanted())
	}
	return nil
}

func (o *Orchestrator) newTarget(raw string) (*target, error) {
	c, err := canonical.Canonicalize(raw)
	if err != nil {
		return nil, err
	}
	logger.Info("target canonicalized",
		"input", raw, "canonical", c.URL, "product_id", c.ProductID)
	return &target{input: raw, canonical: c}, nil
}

// processTarget walks the tier progression for one target.
func (o *Orchestrator) processTarget(ctx context.Context, t *target) error {
	ops, err := o.browser(ctx)
	if err != nil {
		logger.Warn("browser unavailable, skipping browser-backed tiers", "error", err)
		ops = nil
	}
	if ops != nil {
		defer ops.Close()
	}

	outcome := htmlCompleted
	for t.tier = TierDiscoverAndReplay; t.tier < TierDone; t.tier++ {
		if o.acc.Done() || o.nearDeadline(ctx) {
			break
		}

		switch t.tier {
		case TierDiscoverAndReplay:
			if ops == nil {
				continue
			}
			o.runDiscovery(ctx, t, ops)

		case TierDirectAPI:
			// Skipped entirely when no product identifier could be resolved.
			if t.canonical.ProductID == "" {
				logger.Debug("no product identifier, skipping direct api tier")
				continue
			}
			o.runDirectAPI(ctx, t)

		case TierHTMLPaging:
			outcome = o.runHTMLPaging(ctx, t)

		case TierBrowserPaging:
			// Runs on page-1 escalation, or when the HTML tier completed with
			// the quota still unmet. A later-page failure ends the target.
			if ops == nil || outcome == htmlStopped {
				continue
			}
			o.runBrowserPaging(ctx, t, ops)
		}

		if err := o.acc.MaybeFlush(false); err != nil {
			return err
		}
	}
	return nil
}

// nearDeadline reports whether a new operation may still start.
func (o *Orchestrator) nearDeadline(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return time.Until(o.deadline) < deadlineMargin
}
