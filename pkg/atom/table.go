// Package atom provides a concurrent, bidirectional string interning table.
//
// A Table assigns every distinct string a stable ID and converts in both
// directions from any number of goroutines without external locking.
// Interning a string that is already present is a lock-free read of the
// forward index. Interning a new string draws the next ID and installs the
// entry in the sharded reverse index before the forward mapping becomes
// visible, so every ID a caller can observe already resolves back to its text.
package atom

import (
	"log/slog"
	"math/bits"
	"runtime"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// shardsPerProc is the default number of reverse-index shards per GOMAXPROCS.
	shardsPerProc = 4

	// maxShards caps the reverse-index shard count.
	maxShards = 1 << 16
)

// entry is the single allocation shared by both indices for one interned string.
// It is immutable once published.
type entry struct {
	text string
	id   ID
}

// generation holds the indices and the ID counter for one reset epoch.
// Clear replaces the whole generation; nothing inside it is ever removed.
type generation struct {
	forward *xsync.MapOf[string, *entry]
	reverse *reverseIndex
	next    atomic.Uint64
}

func newGeneration(shards, capacity int) *generation {
	var opts []func(*xsync.MapConfig)
	if capacity > 0 {
		opts = append(opts, xsync.WithPresize(capacity))
	}

	return &generation{
		forward: xsync.NewMapOf[string, *entry](opts...),
		reverse: newReverseIndex(shards, capacity),
	}
}

// nextID issues the next unused identifier of this generation.
func (g *generation) nextID() ID {
	n := g.next.Add(1)
	if n == 0 {
		panic("atom: identifier space exhausted")
	}

	return ID(n - 1)
}

// Table is a thread-safe bidirectional string interning table.
// Use New to create one; the zero value is not usable.
type Table struct {
	gen atomic.Pointer[generation]

	shards   int
	capacity int

	tracer  Tracer
	tracing bool
	logger  *slog.Logger

	// Lifetime counters, striped to keep the fast path uncontended.
	hits    *xsync.Counter
	inserts *xsync.Counter
	misses  *xsync.Counter
}

// Option configures a Table.
type Option func(*Table)

// WithCapacity pre-sizes both indices for n distinct strings.
func WithCapacity(n int) Option {
	return func(t *Table) {
		t.capacity = max(n, 0)
	}
}

// WithShards sets the number of reverse-index shards. The value is rounded up
// to a power of two. Zero or negative selects the default of 4 x GOMAXPROCS.
func WithShards(n int) Option {
	return func(t *Table) {
		t.shards = n
	}
}

// WithTracer installs a span hook around cold inserts, batches, Clear and Clone.
// A nil tracer disables tracing.
func WithTracer(tr Tracer) Option {
	return func(t *Table) {
		t.tracer = tr
	}
}

// WithLogger sets the logger for structural events (Clear, Clone).
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		hits:    xsync.NewCounter(),
		inserts: xsync.NewCounter(),
		misses:  xsync.NewCounter(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.shards = normalizeShards(t.shards)

	if t.tracer == nil {
		t.tracer = noopTracer{}
	} else {
		t.tracing = true
	}

	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}

	t.gen.Store(newGeneration(t.shards, t.capacity))

	return t
}

// normalizeShards applies the default and rounds up to a power of two.
func normalizeShards(n int) int {
	if n <= 0 {
		n = shardsPerProc * runtime.GOMAXPROCS(0)
	}

	n = min(n, maxShards)

	return 1 << bits.Len(uint(n-1))
}

// Len returns the number of distinct interned strings.
func (t *Table) Len() int {
	return t.gen.Load().forward.Size()
}

// IsEmpty reports whether nothing has been interned since creation or the last Clear.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// Clear removes every entry and restarts ID numbering at zero.
// IDs issued before Clear become invalid.
//
// Clear must not run concurrently with any other operation on the table,
// and Handles pinned before Clear must not be used after it.
func (t *Table) Clear() {
	if t.tracing {
		defer t.tracer.StartSpan(SpanClear)()
	}

	prev := t.gen.Swap(newGeneration(t.shards, t.capacity))

	t.logger.Debug("atom table cleared", "atoms", prev.forward.Size())
}
