package atom

// Handle pins the table's current generation so a goroutine can run many
// interns and lookups without reloading it on every call. A Handle is cheap
// to copy but is meant for one goroutine at a time.
//
// Clear retires the pinned generation. A Handle pinned before Clear keeps
// the old indices alive and must be replaced with a fresh one from Pin.
type Handle struct {
	t *Table
	g *generation
}

// Pin returns a Handle bound to the table's current generation.
func (t *Table) Pin() Handle {
	return Handle{t: t, g: t.gen.Load()}
}

// Intern is Table.Intern through the pinned generation.
func (h Handle) Intern(s string) ID {
	return h.t.intern(h.g, s)
}

// InternBytes is Table.InternBytes through the pinned generation.
func (h Handle) InternBytes(b []byte) ID {
	return h.t.internBytes(h.g, b)
}

// TryLookupID is Table.TryLookupID through the pinned generation.
func (h Handle) TryLookupID(s string) (ID, bool) {
	return h.t.tryLookupID(h.g, s)
}

// LookupID is Table.LookupID through the pinned generation.
func (h Handle) LookupID(s string) ID {
	return h.t.lookupID(h.g, s)
}

// Stale reports whether the table has been cleared since h was pinned.
func (h Handle) Stale() bool {
	return h.t.gen.Load() != h.g
}
