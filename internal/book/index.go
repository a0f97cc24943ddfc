package book

import (
	"sync"

	"fenrir/internal/common"
)

// Locator records where a live order rests so it can be cancelled or
// modified in O(1) without scanning either side of the book.
type Locator struct {
	Side  common.Side
	Price int64
}

const indexShardCount = 16

type indexShard struct {
	mu  sync.RWMutex
	loc map[common.OrderID]Locator
}

// Index is a sharded concurrent map from order id to its resting location
// (C7's lookup structure, backing O(1) cancel/modify by id).
type Index struct {
	shards [indexShardCount]*indexShard
}

func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &indexShard{loc: make(map[common.OrderID]Locator)}
	}
	return idx
}

func (idx *Index) shardFor(id common.OrderID) *indexShard {
	var h uint32
	for _, b := range id {
		h = h*31 + uint32(b)
	}
	return idx.shards[h%indexShardCount]
}

// Put records where order id now rests.
func (idx *Index) Put(id common.OrderID, loc Locator) {
	shard := idx.shardFor(id)
	shard.mu.Lock()
	shard.loc[id] = loc
	shard.mu.Unlock()
}

// Get returns the recorded location of order id, if any.
func (idx *Index) Get(id common.OrderID) (Locator, bool) {
	shard := idx.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	loc, ok := shard.loc[id]
	return loc, ok
}

// Delete removes the recorded location for order id.
func (idx *Index) Delete(id common.OrderID) {
	shard := idx.shardFor(id)
	shard.mu.Lock()
	delete(shard.loc, id)
	shard.mu.Unlock()
}
