package book

import (
	"sync/atomic"

	"fenrir/internal/clock"
	"fenrir/internal/common"
	"fenrir/internal/idgen"
)

// Level wraps one Queue plus atomic aggregates: visible/hidden quantity,
// order count and last-update timestamp (C4). Every insert/remove/fill
// applies a compensating atomic delta so readers never observe an
// aggregate inconsistent with the sum of orders by more than one
// in-flight operation.
type Level struct {
	price int64
	queue *Queue

	visibleQty   atomic.Uint64
	hiddenQty    atomic.Uint64
	orderCount   atomic.Int64
	lastUpdateTS atomic.Int64
}

// NewLevel constructs an empty price level. Besides building real levels,
// Side also uses a fresh one as a throwaway key to probe the ordered map by
// price (same trick the teacher uses).
func NewLevel(price int64) *Level {
	return &Level{price: price, queue: NewQueue()}
}

func (l *Level) Price() int64 { return l.price }

func (l *Level) VisibleQty() uint64  { return l.visibleQty.Load() }
func (l *Level) HiddenQty() uint64   { return l.hiddenQty.Load() }
func (l *Level) OrderCount() int64   { return l.orderCount.Load() }
func (l *Level) LastUpdateTS() int64 { return l.lastUpdateTS.Load() }

// Empty reports whether the level currently carries no resting orders.
func (l *Level) Empty() bool {
	return l.queue.Len() == 0
}

// Get looks up a resting order at this level by id without removing it.
func (l *Level) Get(id common.OrderID) (*common.Order, bool) {
	return l.queue.Get(id)
}

// Insert adds order to the level's FIFO and folds its quantities into the
// aggregates.
func (l *Level) Insert(order *common.Order, now int64) {
	l.queue.Push(order)
	snap := order.Snapshot()
	l.visibleQty.Add(snap.QtyVisible)
	l.hiddenQty.Add(snap.QtyRemaining - snap.QtyVisible)
	l.orderCount.Add(1)
	l.lastUpdateTS.Store(now)
}

// Remove removes a specific resting order from the level by id, applying
// the compensating aggregate delta. Returns the removed order, if any.
func (l *Level) Remove(id common.OrderID, now int64) (*common.Order, bool) {
	order, ok := l.queue.Remove(id)
	if !ok {
		return nil, false
	}
	snap := order.Snapshot()
	l.visibleQty.Add(^(snap.QtyVisible - 1))
	hidden := snap.QtyRemaining - snap.QtyVisible
	if hidden > 0 {
		l.hiddenQty.Add(^(hidden - 1))
	}
	l.orderCount.Add(-1)
	l.lastUpdateTS.Store(now)
	return order, true
}

// MatchResult summarizes one PriceLevel's contribution to an aggressive walk.
type MatchResult struct {
	FilledQty uint64
	Trades    []common.TradeEvent
}

// MatchAgainst drains the FIFO, consuming visible quantity against
// incoming, emitting fills via sink, and stopping when incoming is
// exhausted or the level runs dry. Concurrent aggressors against the same
// level are naturally serialized: PopFront's shard+deque locking means
// only one goroutine is ever mid-decision on the current head order at a
// time, exactly the "whichever thread CASes the head first wins that
// fill" ordering guarantee of §5.
func (l *Level) MatchAgainst(
	incoming *common.Order,
	clk clock.Source,
	ids idgen.Allocator,
	sink common.TradeSink,
	replenishDefault func(*common.Order) uint64,
) MatchResult {
	var result MatchResult

	for incoming.Remaining() > 0 {
		maker, ok := l.queue.PopFront()
		if !ok {
			break
		}

		if maker.Expired(clk.Now()) {
			// Lazy GTD expiry (§4.4): an order whose deadline has passed is
			// dropped the moment anything touches it, rather than matched.
			maker.SetStatus(common.Expired)
			l.orderCount.Add(-1)
			snap := maker.Snapshot()
			l.visibleQty.Add(^(snap.QtyVisible - 1))
			if hidden := snap.QtyRemaining - snap.QtyVisible; hidden > 0 {
				l.hiddenQty.Add(^(hidden - 1))
			}
			continue
		}

		makerVisible := maker.Visible()
		if makerVisible == 0 {
			// Shouldn't normally happen (zero-visible makers are replenished
			// or removed immediately), but guard against it defensively.
			continue
		}

		qty := incoming.Remaining()
		if makerVisible < qty {
			qty = makerVisible
		}

		now := clk.Now()
		price := maker.Price

		makerRemaining, needsReplenish := maker.Fill(qty, price, now)
		incoming.Fill(qty, price, now)

		l.visibleQty.Add(^(qty - 1))
		l.lastUpdateTS.Store(now)

		trade := common.TradeEvent{
			ID:        ids.NewID(),
			Ts:        now,
			Price:     price,
			Qty:       qty,
			MakerID:   maker.ID,
			MakerSide: maker.Side,
		}
		if maker.Side == common.Bid {
			trade.BuyID = maker.ID
			trade.SellID = incoming.ID
		} else {
			trade.BuyID = incoming.ID
			trade.SellID = maker.ID
		}
		sink.OnTrade(trade)
		result.Trades = append(result.Trades, trade)
		result.FilledQty += qty

		switch {
		case makerRemaining == 0:
			// Maker fully filled: do not requeue, drop the aggregate delta.
			l.orderCount.Add(-1)
		case needsReplenish:
			// Visible ran to zero but hidden reserve remains: replenish and
			// requeue at the tail with a fresh enqueue timestamp (§4.6),
			// losing time priority against later arrivals at this price.
			newVisible := maker.Replenish(replenishDefault(maker), clk.Now())
			l.visibleQty.Add(newVisible)
			l.hiddenQty.Add(^(newVisible - 1))
			l.queue.Requeue(maker, false)
		default:
			// Maker still has visible quantity left (the aggressor ran out
			// first): requeue at the head, unchanged position.
			l.queue.Requeue(maker, true)
		}
	}

	return result
}
