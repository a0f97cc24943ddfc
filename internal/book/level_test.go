package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fenrir/internal/clock"
	"fenrir/internal/common"
	"fenrir/internal/idgen"
)

func defaultReplenish(order *common.Order) uint64 {
	if order.QtyReplenish > 0 {
		return order.QtyReplenish
	}
	return order.QtyVisible
}

func TestLevel_InsertAggregates(t *testing.T) {
	level := NewLevel(100)
	level.Insert(newTestOrder(idN(1), 10), 1)
	level.Insert(newTestOrder(idN(2), 5), 2)

	assert.Equal(t, uint64(15), level.VisibleQty())
	assert.Equal(t, int64(2), level.OrderCount())
	assert.False(t, level.Empty())
}

func TestLevel_RemoveAggregates(t *testing.T) {
	level := NewLevel(100)
	level.Insert(newTestOrder(idN(1), 10), 1)
	level.Insert(newTestOrder(idN(2), 5), 2)

	removed, ok := level.Remove(idN(1), 3)
	assert.True(t, ok)
	assert.Equal(t, idN(1), removed.ID)
	assert.Equal(t, uint64(5), level.VisibleQty())
	assert.Equal(t, int64(1), level.OrderCount())
}

func TestLevel_MatchAgainst_PartialFill(t *testing.T) {
	level := NewLevel(100)
	maker := newTestOrder(idN(1), 10)
	maker.Side = common.Ask
	level.Insert(maker, 1)

	incoming := newTestOrder(idN(2), 4)
	incoming.Side = common.Bid

	clk := clock.NewManual(10)
	ids := idgen.NewSequential()
	sink := &common.CollectingSink{}

	result := level.MatchAgainst(incoming, clk, ids, sink, defaultReplenish)

	assert.Equal(t, uint64(4), result.FilledQty)
	assert.Len(t, result.Trades, 1)
	assert.Equal(t, uint64(0), incoming.Remaining())
	assert.Equal(t, uint64(6), maker.Remaining())
	assert.Equal(t, common.PartiallyFilled, maker.GetStatus())
	assert.Equal(t, uint64(6), level.VisibleQty(), "maker requeued at head, still contributes its remainder")
	assert.Len(t, sink.Events, 1)
}

func TestLevel_MatchAgainst_MakerFullyConsumed(t *testing.T) {
	level := NewLevel(100)
	maker := newTestOrder(idN(1), 10)
	maker.Side = common.Ask
	level.Insert(maker, 1)

	incoming := newTestOrder(idN(2), 10)
	incoming.Side = common.Bid

	clk := clock.NewManual(10)
	ids := idgen.NewSequential()
	sink := &common.CollectingSink{}

	result := level.MatchAgainst(incoming, clk, ids, sink, defaultReplenish)

	assert.Equal(t, uint64(10), result.FilledQty)
	assert.Equal(t, common.Filled, maker.GetStatus())
	assert.True(t, level.Empty())
	assert.Equal(t, int64(0), level.OrderCount())
}

func TestLevel_MatchAgainst_IcebergReplenishLosesPriority(t *testing.T) {
	level := NewLevel(100)

	iceberg := &common.Order{
		ID: idN(1), Side: common.Ask, Type: common.Iceberg,
		QtyTotal: 30, QtyRemaining: 30, QtyVisible: 10, QtyReplenish: 10,
		Status: common.Resting,
	}
	level.Insert(iceberg, 1)

	other := newTestOrder(idN(2), 5)
	other.Side = common.Ask
	level.Insert(other, 2)

	incoming := newTestOrder(idN(3), 10)
	incoming.Side = common.Bid

	clk := clock.NewManual(10)
	ids := idgen.NewSequential()
	sink := &common.CollectingSink{}

	level.MatchAgainst(incoming, clk, ids, sink, defaultReplenish)

	assert.Equal(t, uint64(10), iceberg.Visible(), "replenished back to its visible slice")
	assert.Equal(t, uint64(20), iceberg.Remaining())

	// Having lost time priority, the iceberg now sits behind "other" at
	// the tail: the next aggressor must hit "other" first.
	incoming2 := newTestOrder(idN(4), 5)
	incoming2.Side = common.Bid
	level.MatchAgainst(incoming2, clk, ids, sink, defaultReplenish)
	assert.Equal(t, common.Filled, other.GetStatus(), "other, not the iceberg, should be consumed next")
	assert.Equal(t, uint64(20), iceberg.Remaining(), "iceberg untouched since it lost priority")
}

func TestLevel_MatchAgainst_LazyGTDExpiry(t *testing.T) {
	level := NewLevel(100)

	deadline := int64(5)
	expired := &common.Order{
		ID: idN(1), Side: common.Ask, Type: common.GTD,
		QtyTotal: 10, QtyRemaining: 10, QtyVisible: 10,
		TIFExpiry: &deadline, Status: common.Resting,
	}
	level.Insert(expired, 1)

	live := newTestOrder(idN(2), 10)
	live.Side = common.Ask
	level.Insert(live, 2)

	incoming := newTestOrder(idN(3), 10)
	incoming.Side = common.Bid

	clk := clock.NewManual(100) // well past the deadline
	ids := idgen.NewSequential()
	sink := &common.CollectingSink{}

	result := level.MatchAgainst(incoming, clk, ids, sink, defaultReplenish)

	assert.Equal(t, common.Expired, expired.GetStatus())
	assert.Equal(t, common.Filled, live.GetStatus(), "the live order, not the expired one, should fill")
	assert.Equal(t, uint64(10), result.FilledQty)
}
