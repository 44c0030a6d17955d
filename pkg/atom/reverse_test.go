package atom

import (
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want int
	}{
		{in: 1, want: 1},
		{in: 2, want: 2},
		{in: 3, want: 4},
		{in: 16, want: 16},
		{in: 17, want: 32},
		{in: maxShards + 1, want: maxShards},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeShards(tt.in), "normalizeShards(%d)", tt.in)
	}

	def := normalizeShards(0)
	assert.GreaterOrEqual(t, def, shardsPerProc*runtime.GOMAXPROCS(0))
	assert.Equal(t, def, normalizeShards(-1))
}

func TestReverseIndex_RoundRobinRouting(t *testing.T) {
	t.Parallel()

	const shards = 4

	r := newReverseIndex(shards, 0)

	for i := range 4 * shards {
		r.insert(&entry{id: ID(i), text: strconv.Itoa(i)})
	}

	for i := range r.shards {
		assert.Len(t, r.shards[i].entries, 4, "shard %d", i)
	}

	assert.Equal(t, 4*shards, r.len())
}

func TestReverseIndex_DuplicateInsertPanics(t *testing.T) {
	t.Parallel()

	r := newReverseIndex(1, 0)
	r.insert(&entry{id: 7, text: "a"})

	assert.PanicsWithValue(t, "atom: id 7 issued twice", func() {
		r.insert(&entry{id: 7, text: "b"})
	})
}

func TestReverseIndex_GetAndView(t *testing.T) {
	t.Parallel()

	r := newReverseIndex(2, 16)
	r.insert(&entry{id: 1, text: "one"})

	e, ok := r.get(1)
	require.True(t, ok)
	assert.Equal(t, "one", e.text)

	_, ok = r.get(2)
	assert.False(t, ok)

	var seen string

	assert.True(t, r.view(1, func(s string) { seen = s }))
	assert.Equal(t, "one", seen)
	assert.False(t, r.view(3, func(string) {}))
}

func TestTable_IndicesShareEntries(t *testing.T) {
	t.Parallel()

	tbl := New(WithShards(4))

	for i := range 100 {
		tbl.Intern("s" + strconv.Itoa(i))
	}

	g := tbl.gen.Load()
	require.Equal(t, g.forward.Size(), g.reverse.len())

	g.forward.Range(func(text string, fwd *entry) bool {
		rev, ok := g.reverse.get(fwd.id)
		require.True(t, ok)
		assert.Same(t, fwd, rev, "both indices must hold the same entry")
		assert.Equal(t, text, rev.text)

		return true
	})
}

func TestGeneration_NextIDExhaustion(t *testing.T) {
	t.Parallel()

	g := newGeneration(1, 0)
	assert.Equal(t, ID(0), g.nextID())
	assert.Equal(t, ID(1), g.nextID())

	g.next.Store(^uint64(0))

	assert.PanicsWithValue(t, "atom: identifier space exhausted", func() {
		g.nextID()
	})
}

// len counts reverse entries across all shards.
func (r *reverseIndex) len() int {
	n := 0

	for i := range r.shards {
		sh := &r.shards[i]

		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}

	return n
}
