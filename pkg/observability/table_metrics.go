package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricTableAtoms   = "atomtable.table.atoms"
	metricTableHits    = "atomtable.table.hits"
	metricTableInserts = "atomtable.table.inserts"

	attrTable = "table"
)

// TableStatsProvider exposes atom table counters for OTel export.
// *atom.Table satisfies it.
type TableStatsProvider interface {
	Len() int
	InternHits() int64
	InternInserts() int64
}

// TableRegistry holds the named tables whose size and intern counters are
// reported as observable gauges. Tables can be tracked after the gauges are
// registered; each collection reads the current set.
type TableRegistry struct {
	mu     sync.RWMutex
	tables map[string]TableStatsProvider
}

// NewTableRegistry registers the table gauges on mt and returns an empty
// registry feeding them.
func NewTableRegistry(mt metric.Meter) (*TableRegistry, error) {
	r := &TableRegistry{tables: make(map[string]TableStatsProvider)}

	if err := r.register(mt); err != nil {
		return nil, err
	}

	return r, nil
}

// RegisterTableMetrics registers gauges for a fixed set of named tables.
// A nil provider is skipped, and nothing is registered when none remain.
func RegisterTableMetrics(mt metric.Meter, tables map[string]TableStatsProvider) error {
	r := &TableRegistry{tables: make(map[string]TableStatsProvider, len(tables))}

	for name, p := range tables {
		r.Track(name, p)
	}

	if r.Len() == 0 {
		return nil
	}

	return r.register(mt)
}

// Track reports p under name from the next collection on, replacing any
// table already tracked under that name. A nil provider is ignored.
func (r *TableRegistry) Track(name string, p TableStatsProvider) {
	if p == nil {
		return
	}

	r.mu.Lock()
	r.tables[name] = p
	r.mu.Unlock()
}

// Untrack stops reporting the table tracked under name.
func (r *TableRegistry) Untrack(name string) {
	r.mu.Lock()
	delete(r.tables, name)
	r.mu.Unlock()
}

// Len returns the number of tracked tables.
func (r *TableRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tables)
}

func (r *TableRegistry) register(mt metric.Meter) error {
	gauges := []struct {
		name, desc, unit string
		read             func(TableStatsProvider) int64
	}{
		{metricTableAtoms, "Distinct strings held by the table", "{atom}",
			func(p TableStatsProvider) int64 { return int64(p.Len()) }},
		{metricTableHits, "Interns answered by an existing atom", "{intern}",
			TableStatsProvider.InternHits},
		{metricTableInserts, "Interns that created a new atom", "{intern}",
			TableStatsProvider.InternInserts},
	}

	for _, g := range gauges {
		_, err := mt.Int64ObservableGauge(g.name,
			metric.WithDescription(g.desc),
			metric.WithUnit(g.unit),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				r.observe(o, g.read)

				return nil
			}),
		)
		if err != nil {
			return fmt.Errorf("create %s: %w", g.name, err)
		}
	}

	return nil
}

func (r *TableRegistry) observe(o metric.Int64Observer, read func(TableStatsProvider) int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, p := range r.tables {
		o.Observe(read(p), metric.WithAttributes(attribute.String(attrTable, name)))
	}
}
