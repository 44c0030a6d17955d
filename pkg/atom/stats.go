package atom

// Stats holds table counters.
type Stats struct {
	Atoms   int
	Hits    int64 // Interns answered by an existing entry.
	Inserts int64 // Interns that created a new entry.
	Misses  int64 // TryLookupID/LookupID calls for unknown strings.
	Shards  int
	NextID  uint64
}

// HitRate returns the fraction of interns answered without inserting (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Inserts
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns current table statistics. Hits, Inserts and Misses are
// lifetime counters and survive Clear.
func (t *Table) Stats() Stats {
	g := t.gen.Load()

	return Stats{
		Atoms:   g.forward.Size(),
		Hits:    t.hits.Value(),
		Inserts: t.inserts.Value(),
		Misses:  t.misses.Value(),
		Shards:  t.shards,
		NextID:  g.next.Load(),
	}
}

// InternHits returns the lifetime intern hit count.
func (t *Table) InternHits() int64 { return t.hits.Value() }

// InternInserts returns the lifetime count of newly interned strings.
func (t *Table) InternInserts() int64 { return t.inserts.Value() }
