package bufferpool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// poolMetrics holds the OpenTelemetry instruments the buffer pool manager
// updates on every operation. They are pure instrumentation: nothing here
// participates in the pool's control flow or invariants, so a nil
// poolMetrics (e.g. when telemetry is disabled) is handled by using a
// no-op meter rather than by nil-checking at every call site.
type poolMetrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	evictions     metric.Int64Counter
	dirtyFlushes  metric.Int64Counter
	pinViolations metric.Int64Counter
	exhaustions   metric.Int64Counter
}

func newPoolMetrics(meter metric.Meter) (*poolMetrics, error) {
	hits, err := meter.Int64Counter("bufferpool.cache_hits",
		metric.WithDescription("FetchPage calls satisfied without a disk read"))
	if err != nil {
		return nil, fmt.Errorf("creating cache_hits counter: %w", err)
	}
	misses, err := meter.Int64Counter("bufferpool.cache_misses",
		metric.WithDescription("FetchPage calls that required reading a page from disk"))
	if err != nil {
		return nil, fmt.Errorf("creating cache_misses counter: %w", err)
	}
	evictions, err := meter.Int64Counter("bufferpool.evictions",
		metric.WithDescription("frames reclaimed from the replacer to satisfy a fetch or new-page request"))
	if err != nil {
		return nil, fmt.Errorf("creating evictions counter: %w", err)
	}
	dirtyFlushes, err := meter.Int64Counter("bufferpool.dirty_flushes",
		metric.WithDescription("dirty pages written back to disk"))
	if err != nil {
		return nil, fmt.Errorf("creating dirty_flushes counter: %w", err)
	}
	pinViolations, err := meter.Int64Counter("bufferpool.pin_violations",
		metric.WithDescription("UnpinPage calls rejected because the page was already unpinned"))
	if err != nil {
		return nil, fmt.Errorf("creating pin_violations counter: %w", err)
	}
	exhaustions, err := meter.Int64Counter("bufferpool.exhaustions",
		metric.WithDescription("FetchPage or NewPage calls that found no free or evictable frame"))
	if err != nil {
		return nil, fmt.Errorf("creating exhaustions counter: %w", err)
	}

	return &poolMetrics{
		hits:          hits,
		misses:        misses,
		evictions:     evictions,
		dirtyFlushes:  dirtyFlushes,
		pinViolations: pinViolations,
		exhaustions:   exhaustions,
	}, nil
}

func (m *poolMetrics) recordHit(ctx context.Context)          { m.hits.Add(ctx, 1) }
func (m *poolMetrics) recordMiss(ctx context.Context)         { m.misses.Add(ctx, 1) }
func (m *poolMetrics) recordEviction(ctx context.Context)     { m.evictions.Add(ctx, 1) }
func (m *poolMetrics) recordDirtyFlush(ctx context.Context)   { m.dirtyFlushes.Add(ctx, 1) }
func (m *poolMetrics) recordPinViolation(ctx context.Context) { m.pinViolations.Add(ctx, 1) }
func (m *poolMetrics) recordExhaustion(ctx context.Context)   { m.exhaustions.Add(ctx, 1) }
