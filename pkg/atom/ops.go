package atom

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"
)

// Sentinel errors for caller contract violations.
var (
	// ErrUnknownID is returned when an ID was never issued by the table,
	// or was issued before the last Clear.
	ErrUnknownID = errors.New("atom: unknown id")

	// ErrUnknownText is the panic value of LookupID for a string that was never interned.
	ErrUnknownText = errors.New("atom: unknown text")
)

// Intern returns the ID for s, assigning a new one if s has not been seen.
// Strings that are already present cost one lock-free map read and no allocation.
func (t *Table) Intern(s string) ID {
	return t.intern(t.gen.Load(), s)
}

// InternBytes is Intern for a byte slice. The table keeps its own copy of b.
func (t *Table) InternBytes(b []byte) ID {
	return t.internBytes(t.gen.Load(), b)
}

// InternBatch interns every string in ss using a single pinned Handle.
// The result is one-to-one with ss and in the same order.
func (t *Table) InternBatch(ss []string) []ID {
	if t.tracing {
		defer t.tracer.StartSpan(SpanInternBatch)()
	}

	h := t.Pin()
	ids := make([]ID, len(ss))

	for i, s := range ss {
		ids[i] = h.Intern(s)
	}

	return ids
}

func (t *Table) intern(g *generation, s string) ID {
	if e, ok := g.forward.Load(s); ok {
		t.hits.Inc()

		return e.id
	}

	// The caller may reuse the memory behind s; the table keeps its own copy.
	return t.internCold(g, strings.Clone(s))
}

func (t *Table) internBytes(g *generation, b []byte) ID {
	// The aliased key only lives for the lookup; the map never retains it.
	if e, ok := g.forward.Load(unsafe.String(unsafe.SliceData(b), len(b))); ok {
		t.hits.Inc()

		return e.id
	}

	return t.internCold(g, string(b))
}

// internCold installs text, which must be owned by the table from here on.
// The reverse entry is written inside the compute function, so it is visible
// before any goroutine can load the forward mapping. LoadOrCompute runs the
// function at most once per absent key, so racing callers never burn IDs.
func (t *Table) internCold(g *generation, text string) ID {
	if t.tracing {
		defer t.tracer.StartSpan(SpanInternCold)()
	}

	e, loaded := g.forward.LoadOrCompute(text, func() *entry {
		e := &entry{id: g.nextID(), text: text}
		g.reverse.insert(e)

		return e
	})

	if loaded {
		t.hits.Inc()
	} else {
		t.inserts.Inc()
	}

	return e.id
}

// TryLookupID returns the ID for s if s has been interned. It never inserts.
func (t *Table) TryLookupID(s string) (ID, bool) {
	return t.tryLookupID(t.gen.Load(), s)
}

// LookupID returns the ID for s and panics with ErrUnknownText if s has never
// been interned. Use it only where s is known to be present.
func (t *Table) LookupID(s string) ID {
	return t.lookupID(t.gen.Load(), s)
}

func (t *Table) tryLookupID(g *generation, s string) (ID, bool) {
	e, ok := g.forward.Load(s)
	if !ok {
		t.misses.Inc()

		return 0, false
	}

	return e.id, true
}

func (t *Table) lookupID(g *generation, s string) ID {
	id, ok := t.tryLookupID(g, s)
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrUnknownText, s))
	}

	return id
}

// Lookup returns the text for id. The returned string shares the table's
// immutable storage; nothing stays locked after the call.
// It returns ErrUnknownID if id was not issued by this table since the last Clear.
func (t *Table) Lookup(id ID) (string, error) {
	e, ok := t.gen.Load().reverse.get(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}

	return e.text, nil
}

// MustLookup is Lookup that panics on an unknown ID.
func (t *Table) MustLookup(id ID) string {
	text, err := t.Lookup(id)
	if err != nil {
		panic(err)
	}

	return text
}

// View calls fn with the text for id while holding the read lock of the
// shard that stores id. fn must be short and must not intern new strings
// into this table. It returns ErrUnknownID without calling fn if id is unknown.
func (t *Table) View(id ID, fn func(text string)) error {
	if !t.gen.Load().reverse.view(id, fn) {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}

	return nil
}
