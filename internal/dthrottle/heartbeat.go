package dthrottle

import (
	"context"
	"time"
)

// minHeartbeatInterval and maxHeartbeatInterval bound the configured
// gossip interval (spec.md §6): below one second the reporting overhead
// swamps the work being reported on, and above an hour peers drift too
// far apart to usefully converge.
const (
	minHeartbeatInterval = time.Second
	maxHeartbeatInterval = time.Hour
)

// ClampHeartbeatInterval clamps d into [minHeartbeatInterval,
// maxHeartbeatInterval].
func ClampHeartbeatInterval(d time.Duration) time.Duration {
	switch {
	case d < minHeartbeatInterval:
		return minHeartbeatInterval
	case d > maxHeartbeatInterval:
		return maxHeartbeatInterval
	default:
		return d
	}
}

// Heartbeat is spec.md §4.6's gossip glue: it periodically turns the
// Engine's local report into a publication, and turns every inbound
// publication (other than this instance's own) back into ingestion.
//
// Grounded on throttleapp.cpp's OnTimer/OnMessageReceived pair, with
// radioSilence and the local-delivery check preserved verbatim from
// there.
type Heartbeat struct {
	engine   *Engine
	pubsub   PubSub
	logger   Logger
	metrics  Metrics
	interval time.Duration
}

// NewHeartbeat constructs a Heartbeat. interval is clamped via
// ClampHeartbeatInterval.
func NewHeartbeat(engine *Engine, pubsub PubSub, logger Logger, metrics Metrics, interval time.Duration) *Heartbeat {
	if logger == nil {
		logger = NopLogger{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Heartbeat{
		engine:   engine,
		pubsub:   pubsub,
		logger:   logger,
		metrics:  metrics,
		interval: ClampHeartbeatInterval(interval),
	}
}

// Start subscribes to gossip and begins the periodic publish ticker. It
// blocks until ctx is done.
func (h *Heartbeat) Start(ctx context.Context) error {
	if err := h.pubsub.Subscribe(ctx, HeartbeatSubject, h.onMessage); err != nil {
		return err
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick is throttleapp.cpp's OnTimer: make a report and publish it,
// unless radio silence is in effect. The report is published even when
// empty - this instance still publishes under never_throttle, when it
// has no local hits to report (spec.md §4.6).
func (h *Heartbeat) tick(ctx context.Context) {
	report := h.engine.MakeReport()
	if h.engine.Switches().RadioSilence() {
		return
	}
	payload, err := EncodeReport(report)
	if err != nil {
		h.logger.Error("encode report failed", map[string]any{"error": err.Error()})
		return
	}
	if err := h.pubsub.Publish(ctx, HeartbeatSubject, payload); err != nil {
		h.logger.Error("publish report failed", map[string]any{"error": err.Error()})
		return
	}
	h.metrics.IncReportSent(len(report))
}

// onMessage is throttleapp.cpp's OnMessageReceived: ingest every
// non-local publication, unless radio silence is in effect.
func (h *Heartbeat) onMessage(_ context.Context, payload []byte, local bool) {
	if local || h.engine.Switches().RadioSilence() {
		return
	}
	report, err := DecodeReport(payload)
	if err != nil {
		h.logger.Error("malformed gossip entry", map[string]any{"error": err.Error()})
		return
	}
	h.engine.ReceiveReport(report)
	h.metrics.IncReportReceived(len(report))
}
