package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/ports"
	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

// ErrSuperseded marks a query whose result arrived after a newer click
// took over the coordinator. Its outcome must not be delivered.
var ErrSuperseded = errors.New("query superseded by a newer click")

var errQueryTimeout = errors.New("feature-info query timed out")

// LayerCoordinator issues at most one live GetFeatureInfo query for its
// layer. A new click cancels the previous in-flight query
// (last-click-wins); each query races the WMS call against a fixed
// timeout. Transport failures, timeouts and cancellations all collapse
// into a no-result outcome.
type LayerCoordinator struct {
	layer    string
	opts     QueryOptions
	client   ports.FeatureInfoClient
	throttle *Throttler
	timeout  time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewLayerCoordinator creates a coordinator for one named layer.
func NewLayerCoordinator(layer string, opts QueryOptions, client ports.FeatureInfoClient, throttle *Throttler, timeout time.Duration) *LayerCoordinator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LayerCoordinator{
		layer:    layer,
		opts:     opts,
		client:   client,
		throttle: throttle,
		timeout:  timeout,
	}
}

// Layer returns the WMS layer this coordinator queries.
func (c *LayerCoordinator) Layer() string { return c.layer }

// Query resolves a map click against this coordinator's layer. The
// returned outcome is OutcomeNone unless the server reported features.
// ErrSuperseded is returned when a newer click took over before this
// query settled; callers drop the outcome silently in that case.
func (c *LayerCoordinator) Query(ctx context.Context, vp domain.Viewport, click domain.PixelPoint) (domain.QueryOutcome, error) {
	req, err := BuildFeatureQuery(vp, click, c.layer, c.opts)
	if err != nil {
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, err
	}

	c.mu.Lock()
	c.gen++
	mine := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	qctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.gen == mine {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	requestID := fmt.Sprintf("%s#%d", c.layer, mine)
	metrics.QueriesIssued.WithLabelValues(c.layer).Inc()
	start := time.Now()

	var features []domain.FeatureCandidate
	err = c.throttle.Submit(qctx, requestID, func(opCtx context.Context) error {
		type result struct {
			features []domain.FeatureCandidate
			err      error
		}
		ch := make(chan result, 1)
		go func() {
			f, err := c.client.GetFeatureInfo(opCtx, req)
			ch <- result{f, err}
		}()

		// First of response, timeout, or cancellation wins. The
		// buffered channel lets a late response be dropped without
		// leaking the goroutine.
		select {
		case r := <-ch:
			features = r.features
			return r.err
		case <-time.After(c.timeout):
			return errQueryTimeout
		case <-opCtx.Done():
			return opCtx.Err()
		}
	})

	metrics.QueryDuration.WithLabelValues(c.layer).Observe(time.Since(start).Seconds())

	// A result, success or failure, is only deliverable while this is
	// still the coordinator's newest query.
	c.mu.Lock()
	superseded := c.gen != mine
	c.mu.Unlock()
	if superseded {
		metrics.QueryOutcomes.WithLabelValues(c.layer, "superseded").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, ErrSuperseded
	}

	switch {
	case err == nil:
	case errors.Is(err, errQueryTimeout):
		slog.Warn("feature-info query timed out", "layer", c.layer, "timeout", c.timeout)
		metrics.QueryOutcomes.WithLabelValues(c.layer, "timeout").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	case errors.Is(err, context.Canceled), errors.Is(err, ErrThrottleCleared):
		metrics.QueryOutcomes.WithLabelValues(c.layer, "cancelled").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	default:
		slog.Warn("feature-info query failed", "layer", c.layer, "error", err)
		metrics.QueryOutcomes.WithLabelValues(c.layer, "error").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	}

	switch len(features) {
	case 0:
		metrics.QueryOutcomes.WithLabelValues(c.layer, "none").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	case 1:
		metrics.QueryOutcomes.WithLabelValues(c.layer, "feature").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeFeature, Feature: &features[0]}, nil
	default:
		metrics.QueryOutcomes.WithLabelValues(c.layer, "candidates").Inc()
		return domain.QueryOutcome{Kind: domain.OutcomeCandidates, Candidates: features}, nil
	}
}

// CancelInflight aborts the current in-flight query, if any. Used on
// session teardown.
func (c *LayerCoordinator) CancelInflight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
