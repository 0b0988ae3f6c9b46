package metrics

import (
	"context"
	"time"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/services/authorization"
)

// InstrumentedEngine wraps a permission engine and records metrics for
// every decision. It satisfies authorization.EngineInterface, so callers
// can swap it in wherever a plain engine is used.
type InstrumentedEngine struct {
	inner     authorization.EngineInterface
	collector *Collector
	exporter  *PrometheusExporter
}

// NewInstrumentedEngine wraps the engine with metric recording. The
// exporter may be nil when Prometheus export is not wanted.
func NewInstrumentedEngine(inner authorization.EngineInterface, collector *Collector, exporter *PrometheusExporter) *InstrumentedEngine {
	return &InstrumentedEngine{
		inner:     inner,
		collector: collector,
		exporter:  exporter,
	}
}

// CheckPermission delegates to the wrapped engine and records the
// decision count and duration under the action label.
func (m *InstrumentedEngine) CheckPermission(ctx context.Context, catalogue *entities.Catalogue, action entities.Action, principalID string) (bool, error) {
	start := time.Now()
	allowed, err := m.inner.CheckPermission(ctx, catalogue, action, principalID)
	elapsed := time.Since(start).Seconds()

	if err == nil {
		m.record(action.String(), allowed, elapsed)
	}
	return allowed, err
}

// CheckPermissionBatch delegates to the wrapped engine. The batch is
// recorded as one decision per catalogue, all sharing the duration of
// the whole batch.
func (m *InstrumentedEngine) CheckPermissionBatch(ctx context.Context, catalogues []*entities.Catalogue, action entities.Action, principalID string) (map[string]bool, error) {
	start := time.Now()
	results, err := m.inner.CheckPermissionBatch(ctx, catalogues, action, principalID)
	elapsed := time.Since(start).Seconds()

	if err == nil {
		for _, allowed := range results {
			m.record(action.String(), allowed, elapsed)
		}
	}
	return results, err
}

func (m *InstrumentedEngine) record(action string, allowed bool, elapsed float64) {
	m.collector.RecordDecision(action, allowed)
	m.collector.RecordDuration(action, elapsed)
	if m.exporter != nil {
		m.exporter.RecordDecision(action, allowed)
		m.exporter.RecordDuration(action, elapsed)
	}
}

// InstrumentWalker attaches cycle and store-error hooks to the walker so
// traversal health shows up in the collector and exporter.
func InstrumentWalker(walker *authorization.Walker, collector *Collector, exporter *PrometheusExporter) {
	walker.OnCycle = func(chain string, id string) {
		collector.RecordCycle()
		if exporter != nil {
			exporter.RecordCycle(chain)
		}
	}
	walker.OnStoreError = func(chain string, err error) {
		collector.RecordStoreError(chain)
		if exporter != nil {
			exporter.RecordStoreError(chain)
		}
	}
}
