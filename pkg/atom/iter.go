package atom

import (
	"encoding/binary"
	"iter"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Entry is one interned string and its ID.
type Entry struct {
	ID   ID     `json:"id"   yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// All returns an iterator over every (ID, text) pair, in unspecified order.
//
// Shards are visited one at a time; each shard is copied under its read lock
// and yielded with no lock held, so the loop body may call back into the table.
// Concurrent interning may or may not be reflected, shard by shard.
func (t *Table) All() iter.Seq2[ID, string] {
	return func(yield func(ID, string) bool) {
		r := t.gen.Load().reverse

		var buf []*entry

		for i := range r.shards {
			buf = r.collect(i, buf[:0])

			for _, e := range buf {
				if !yield(e.id, e.text) {
					return
				}
			}
		}
	}
}

// Snapshot returns every entry sorted by ID.
func (t *Table) Snapshot() []Entry {
	entries := make([]Entry, 0, t.Len())

	for id, text := range t.All() {
		entries = append(entries, Entry{ID: id, Text: text})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return a.ID.Compare(b.ID)
	})

	return entries
}

// Digest returns a 64-bit fingerprint of the table contents.
// Tables holding the same (ID, text) pairs have the same digest.
func (t *Table) Digest() uint64 {
	d := xxhash.New()

	var hdr [16]byte

	for _, e := range t.Snapshot() {
		binary.LittleEndian.PutUint64(hdr[:8], uint64(e.ID))
		binary.LittleEndian.PutUint64(hdr[8:], uint64(len(e.Text)))

		_, _ = d.Write(hdr[:])
		_, _ = d.WriteString(e.Text)
	}

	return d.Sum64()
}

// Clone returns an independent table with the same options and contents.
// The clone continues numbering after the highest ID it holds.
//
// Entries interned concurrently with Clone may be missing from the clone.
func (t *Table) Clone() *Table {
	if t.tracing {
		defer t.tracer.StartSpan(SpanClone)()
	}

	src := t.gen.Load()

	c := New(
		WithShards(t.shards),
		WithCapacity(t.capacity),
		WithLogger(t.logger),
	)
	c.tracer, c.tracing = t.tracer, t.tracing

	dst := newGeneration(c.shards, max(c.capacity, src.forward.Size()))

	var (
		buf  []*entry
		next uint64
	)

	for i := range src.reverse.shards {
		buf = src.reverse.collect(i, buf[:0])

		for _, e := range buf {
			// Entries are immutable, so both tables can share them.
			dst.reverse.insert(e)
			dst.forward.Store(e.text, e)

			next = max(next, uint64(e.id)+1)
		}
	}

	// Loaded after the copy so it covers every ID seen above.
	dst.next.Store(max(next, src.next.Load()))
	c.gen.Store(dst)

	t.logger.Debug("atom table cloned", "atoms", dst.forward.Size())

	return c
}
