// Package book implements C3 (OrderQueue), C4 (PriceLevel) and C5
// (BookSide): the price-ordered ladder and its per-price FIFOs.
package book

import (
	"sync"
	"sync/atomic"

	"fenrir/internal/common"
)

const queueShardCount = 16

// idDeque is a growable circular buffer of order ids, guarded by a single
// mutex. It is the FIFO half of the OrderQueue: it records arrival order
// without owning the order bodies.
//
// This stands in for the spec's lock-free MPMC queue. The pack contains no
// verified lock-free queue implementation to ground one on (see DESIGN.md);
// a single narrowly-scoped mutex around a ring buffer preserves every
// externally observable property the spec asks of the FIFO (stale-pop
// tolerance, O(1) amortized push/pop, no traversal needed to delete a
// logical entry) without fabricating unverified lock-free code.
type idDeque struct {
	mu         sync.Mutex
	buf        []common.OrderID
	head, size int
}

func newIDDeque() *idDeque {
	return &idDeque{buf: make([]common.OrderID, 8)}
}

func (d *idDeque) pushBack(id common.OrderID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.size == len(d.buf) {
		d.grow()
	}
	d.buf[(d.head+d.size)%len(d.buf)] = id
	d.size++
}

func (d *idDeque) pushFront(id common.OrderID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.size == len(d.buf) {
		d.grow()
	}
	d.head = (d.head - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.head] = id
	d.size++
}

func (d *idDeque) popFront() (common.OrderID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.size == 0 {
		return common.OrderID{}, false
	}
	id := d.buf[d.head]
	d.head = (d.head + 1) % len(d.buf)
	d.size--
	return id, true
}

func (d *idDeque) grow() {
	newBuf := make([]common.OrderID, len(d.buf)*2)
	for i := 0; i < d.size; i++ {
		newBuf[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	d.buf = newBuf
	d.head = 0
}

type queueShard struct {
	mu     sync.Mutex
	orders map[common.OrderID]*common.Order
}

// Queue is a hybrid FIFO: a sharded concurrent map owns the order bodies,
// and a single deque of ids encodes time priority. A popped id may be
// stale if its body was already removed by Remove; PopFront/PeekFront
// dereference through the map and skip stale entries transparently.
type Queue struct {
	shards [queueShardCount]*queueShard
	ids    *idDeque
	length atomic.Int64
}

func NewQueue() *Queue {
	q := &Queue{ids: newIDDeque()}
	for i := range q.shards {
		q.shards[i] = &queueShard{orders: make(map[common.OrderID]*common.Order)}
	}
	return q
}

func (q *Queue) shardFor(id common.OrderID) *queueShard {
	var h uint32
	for _, b := range id {
		h = h*31 + uint32(b)
	}
	return q.shards[h%queueShardCount]
}

// Push appends order as the most-junior entry at this price.
func (q *Queue) Push(order *common.Order) {
	shard := q.shardFor(order.ID)
	shard.mu.Lock()
	shard.orders[order.ID] = order
	shard.mu.Unlock()

	q.ids.pushBack(order.ID)
	q.length.Add(1)
}

// PopFront returns and removes the oldest live order, skipping any stale
// ids left behind by a concurrent Remove.
func (q *Queue) PopFront() (*common.Order, bool) {
	for {
		id, ok := q.ids.popFront()
		if !ok {
			return nil, false
		}
		shard := q.shardFor(id)
		shard.mu.Lock()
		order, exists := shard.orders[id]
		if exists {
			delete(shard.orders, id)
		}
		shard.mu.Unlock()
		if !exists {
			continue // stale pop: already removed by Remove()
		}
		q.length.Add(-1)
		return order, true
	}
}

// PeekFront non-destructively returns the oldest live order, discarding any
// stale ids it encounters along the way (they are garbage regardless).
func (q *Queue) PeekFront() (*common.Order, bool) {
	for {
		id, ok := q.ids.popFront()
		if !ok {
			return nil, false
		}
		shard := q.shardFor(id)
		shard.mu.Lock()
		order, exists := shard.orders[id]
		shard.mu.Unlock()
		if !exists {
			continue // stale: drop permanently, it was garbage
		}
		q.ids.pushFront(id)
		return order, true
	}
}

// Requeue reinserts an order that was previously taken off the queue via
// PopFront, either back at the head (it kept its time priority — the
// aggressor that popped it simply didn't need all of it) or at the tail
// with a fresh position (iceberg/reserve replenishment, §4.6, which
// deliberately loses time priority). This is the only way a popped order
// returns to the FIFO; it is what lets PopFront serialize concurrent
// aggressors against one level via a simple head-pop instead of a lock
// held for the whole match.
func (q *Queue) Requeue(order *common.Order, front bool) {
	shard := q.shardFor(order.ID)
	shard.mu.Lock()
	shard.orders[order.ID] = order
	shard.mu.Unlock()

	if front {
		q.ids.pushFront(order.ID)
	} else {
		q.ids.pushBack(order.ID)
	}
	q.length.Add(1)
}

// Remove removes a specific order by id in O(1) average time. The id
// remains in the FIFO as a stale entry that PopFront/PeekFront will skip.
func (q *Queue) Remove(id common.OrderID) (*common.Order, bool) {
	shard := q.shardFor(id)
	shard.mu.Lock()
	order, exists := shard.orders[id]
	if exists {
		delete(shard.orders, id)
	}
	shard.mu.Unlock()
	if exists {
		q.length.Add(-1)
	}
	return order, exists
}

// Get looks up an order without removing it.
func (q *Queue) Get(id common.OrderID) (*common.Order, bool) {
	shard := q.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	order, exists := shard.orders[id]
	return order, exists
}

// Len returns the live order count, tracked by a dedicated atomic counter
// updated on real insert/remove, never on a stale pop.
func (q *Queue) Len() int64 {
	return q.length.Load()
}

// IterSnapshot returns a point-in-time copy of all live order pointers, in
// no particular order. Intended for reads (snapshots, FOK sums, tests),
// never for the hot matching path.
func (q *Queue) IterSnapshot() []*common.Order {
	out := make([]*common.Order, 0, q.Len())
	for _, shard := range q.shards {
		shard.mu.Lock()
		for _, o := range shard.orders {
			out = append(out, o)
		}
		shard.mu.Unlock()
	}
	return out
}
