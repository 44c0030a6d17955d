package atom

import (
	"fmt"
	"sync"

	"golang.org/x/sys/cpu"
)

// shard is one independently locked partition of the reverse index.
type shard struct {
	mu      sync.RWMutex
	entries map[ID]*entry
	_       cpu.CacheLinePad
}

// reverseIndex maps IDs back to entries. IDs are sequential, so the low bits
// route them round-robin across shards without any mixing.
type reverseIndex struct {
	shards []shard
	mask   uint64
}

// newReverseIndex creates n shards; n must be a power of two.
func newReverseIndex(n, capacity int) *reverseIndex {
	perShard := 0
	if capacity > 0 {
		perShard = capacity/n + 1
	}

	r := &reverseIndex{
		shards: make([]shard, n),
		mask:   uint64(n - 1),
	}

	for i := range r.shards {
		r.shards[i].entries = make(map[ID]*entry, perShard)
	}

	return r
}

func (r *reverseIndex) shardFor(id ID) *shard {
	return &r.shards[uint64(id)&r.mask]
}

// insert adds e. Each ID is inserted exactly once per generation;
// a second insert means the generator handed out the same ID twice.
func (r *reverseIndex) insert(e *entry) {
	sh := r.shardFor(e.id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, dup := sh.entries[e.id]; dup {
		panic(fmt.Sprintf("atom: id %d issued twice", e.id))
	}

	sh.entries[e.id] = e
}

func (r *reverseIndex) get(id ID) (*entry, bool) {
	sh := r.shardFor(id)

	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()

	return e, ok
}

// view calls fn with the text for id while holding the shard read lock.
func (r *reverseIndex) view(id ID, fn func(text string)) bool {
	sh := r.shardFor(id)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[id]
	if !ok {
		return false
	}

	fn(e.text)

	return true
}

// collect appends the entries of shard i to dst as of the moment it is read.
func (r *reverseIndex) collect(i int, dst []*entry) []*entry {
	sh := &r.shards[i]

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	for _, e := range sh.entries {
		dst = append(dst, e)
	}

	return dst
}
