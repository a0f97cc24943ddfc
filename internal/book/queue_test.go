package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fenrir/internal/common"
)

func newTestOrder(id common.OrderID, qty uint64) *common.Order {
	return &common.Order{
		ID:           id,
		Side:         common.Bid,
		Type:         common.Limit,
		QtyTotal:     qty,
		QtyRemaining: qty,
		QtyVisible:   qty,
		Status:       common.Resting,
	}
}

func idN(n byte) common.OrderID {
	var id common.OrderID
	id[15] = n
	return id
}

func TestQueue_PushAndPopFront_FIFO(t *testing.T) {
	q := NewQueue()
	q.Push(newTestOrder(idN(1), 10))
	q.Push(newTestOrder(idN(2), 20))
	q.Push(newTestOrder(idN(3), 30))

	first, ok := q.PopFront()
	assert.True(t, ok)
	assert.Equal(t, idN(1), first.ID)

	second, ok := q.PopFront()
	assert.True(t, ok)
	assert.Equal(t, idN(2), second.ID)

	assert.Equal(t, int64(1), q.Len())
}

func TestQueue_RemoveLeavesStalePop(t *testing.T) {
	q := NewQueue()
	q.Push(newTestOrder(idN(1), 10))
	q.Push(newTestOrder(idN(2), 20))

	removed, ok := q.Remove(idN(1))
	assert.True(t, ok)
	assert.Equal(t, idN(1), removed.ID)
	assert.Equal(t, int64(1), q.Len())

	// The stale id for order 1 is still sitting in the deque; PopFront
	// must skip it transparently and hand back order 2.
	front, ok := q.PopFront()
	assert.True(t, ok)
	assert.Equal(t, idN(2), front.ID)
}

func TestQueue_RequeueFrontPreservesPriority(t *testing.T) {
	q := NewQueue()
	q.Push(newTestOrder(idN(1), 10))
	q.Push(newTestOrder(idN(2), 20))

	maker, ok := q.PopFront()
	assert.True(t, ok)
	q.Requeue(maker, true)

	front, ok := q.PeekFront()
	assert.True(t, ok)
	assert.Equal(t, idN(1), front.ID, "requeue(front=true) must restore original position")
}

func TestQueue_RequeueBackLosesPriority(t *testing.T) {
	q := NewQueue()
	q.Push(newTestOrder(idN(1), 10))
	q.Push(newTestOrder(idN(2), 20))

	maker, ok := q.PopFront()
	assert.True(t, ok)
	q.Requeue(maker, false)

	front, ok := q.PeekFront()
	assert.True(t, ok)
	assert.Equal(t, idN(2), front.ID, "requeue(front=false) must move to the tail")
}

func TestQueue_GetDoesNotRemove(t *testing.T) {
	q := NewQueue()
	q.Push(newTestOrder(idN(1), 10))

	order, ok := q.Get(idN(1))
	assert.True(t, ok)
	assert.Equal(t, uint64(10), order.QtyTotal)
	assert.Equal(t, int64(1), q.Len())
}

func TestQueue_PopFrontEmpty(t *testing.T) {
	q := NewQueue()
	_, ok := q.PopFront()
	assert.False(t, ok)
}
