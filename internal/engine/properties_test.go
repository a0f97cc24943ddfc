package engine

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookpkg "fenrir/internal/book"
	"fenrir/internal/common"
)

// --- Invariant 1: price priority ---------------------------------------------

// A single aggressor's maker fill prices must be monotone toward worse
// prices as the walk proceeds: non-decreasing for an ask-side walk
// (buying), non-increasing for a bid-side walk (selling).
func TestInvariant_PricePriority(t *testing.T) {
	book, _, _ := newTestBook()

	book.Submit(limitSpec(common.Ask, 100, 5))
	book.Submit(limitSpec(common.Ask, 101, 5))
	book.Submit(limitSpec(common.Ask, 102, 5))

	out := book.Submit(OrderSpec{Side: common.Bid, Type: common.IOC, QtyTotal: 15, Price: 200})

	require.Len(t, out.Trades, 3)
	for i := 1; i < len(out.Trades); i++ {
		assert.GreaterOrEqual(t, out.Trades[i].Price, out.Trades[i-1].Price, "buying must walk prices upward")
	}
}

// --- Invariant 2: time priority -----------------------------------------------

func TestInvariant_TimePriority(t *testing.T) {
	book, _, clk := newTestBook()

	var ids []common.OrderID
	for i := 0; i < 5; i++ {
		out := book.Submit(limitSpec(common.Ask, 100, 1))
		ids = append(ids, out.OrderID)
		clk.Advance(1)
	}

	out := book.Submit(OrderSpec{Side: common.Bid, Type: common.IOC, QtyTotal: 5, Price: 100})
	require.Len(t, out.Trades, 5)
	for i, trade := range out.Trades {
		assert.Equal(t, ids[i], trade.MakerID, "makers must fill in enqueue order")
	}
}

// --- Invariant 3: conservation -------------------------------------------------

func TestInvariant_Conservation(t *testing.T) {
	book, _, _ := newTestBook()

	out := book.Submit(limitSpec(common.Ask, 100, 10))
	maker, ok := book.idx.Get(out.OrderID)
	require.True(t, ok)
	level, ok := book.asks.LevelAt(100)
	require.True(t, ok)
	order, ok := level.Get(out.OrderID)
	require.True(t, ok)
	_ = maker

	book.Submit(limitSpec(common.Bid, 100, 4))

	var filled uint64
	for _, rec := range order.FillHistory {
		filled += rec.Qty
	}
	assert.LessOrEqual(t, filled, order.QtyTotal)
	assert.Equal(t, uint64(4), filled)
	assert.Equal(t, common.PartiallyFilled, order.GetStatus())

	book.Submit(limitSpec(common.Bid, 100, 6))
	filled = 0
	for _, rec := range order.FillHistory {
		filled += rec.Qty
	}
	assert.Equal(t, order.QtyTotal, filled)
	assert.Equal(t, common.Filled, order.GetStatus())
}

// --- Invariant 4: never crossed post-match -------------------------------------

func TestInvariant_NeverCrossedPostMatch(t *testing.T) {
	book, _, _ := newTestBook()

	book.Submit(limitSpec(common.Ask, 100, 10))
	book.Submit(limitSpec(common.Ask, 105, 10))
	book.Submit(limitSpec(common.Bid, 95, 10))
	book.Submit(limitSpec(common.Bid, 100, 3))

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if hasBid && hasAsk {
		assert.Less(t, bestBid, bestAsk, "book must never rest crossed")
	}
}

// --- Invariant 5: cancel idempotence -------------------------------------------

func TestInvariant_CancelIdempotence(t *testing.T) {
	book, sink, _ := newTestBook()
	out := book.Submit(limitSpec(common.Bid, 100, 10))

	first := book.Cancel(out.OrderID)
	assert.Equal(t, Cancelled, first.Result)

	before := len(sink.Events)
	second := book.Cancel(out.OrderID)
	assert.NotEqual(t, Cancelled, second.Result)

	// No trade should ever be attributable to a cancelled order afterward.
	book.Submit(limitSpec(common.Ask, 100, 10))
	assert.Equal(t, before, len(sink.Events), "a cancelled order cannot fill")
}

// --- Invariant 6: FOK atomicity -------------------------------------------------

func TestInvariant_FOKAtomicity(t *testing.T) {
	book, sink, _ := newTestBook()
	book.Submit(limitSpec(common.Ask, 100, 50))

	out := book.Submit(OrderSpec{Side: common.Bid, Type: common.FOK, Price: 100, QtyTotal: 100})
	assert.Equal(t, common.Rejected, out.Status)

	for _, e := range sink.Events {
		assert.NotEqual(t, out.OrderID, e.BuyID, "rejected FOK order must leave zero trade events")
		assert.NotEqual(t, out.OrderID, e.SellID)
	}
}

// --- Invariant 7: round-trip snapshot -------------------------------------------

func TestInvariant_SnapshotRoundTrip(t *testing.T) {
	book, _, _ := newTestBook()
	book.Submit(limitSpec(common.Bid, 100, 5))
	book.Submit(limitSpec(common.Bid, 99, 3))
	book.Submit(limitSpec(common.Ask, 101, 7))

	snap := book.Snapshot(10)

	var walked []int64
	book.bids.Walk(0, false, func(level *bookpkg.Level) bool {
		walked = append(walked, level.Price())
		return true
	})

	var snapPrices []int64
	for _, row := range snap.Bids {
		snapPrices = append(snapPrices, row.Price)
	}
	assert.Equal(t, walked, snapPrices, "snapshot order must match C5's ordered walk")
}

// --- Concurrency storm ---------------------------------------------------------

// Submits race from many goroutines, then (after they all finish) cancels
// race from many goroutines; the book must not panic and must not be left
// resting crossed.
func TestConcurrentSubmitCancelStorm(t *testing.T) {
	book, _, _ := newTestBook()

	const workers = 16
	const opsPerWorker = 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	var placed []common.OrderID

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < opsPerWorker; i++ {
				side := common.Bid
				if rng.Intn(2) == 0 {
					side = common.Ask
				}
				price := int64(95 + rng.Intn(10))
				qty := uint64(1 + rng.Intn(5))
				out := book.Submit(limitSpec(side, price, qty))
				if out.Status == common.Resting {
					mu.Lock()
					placed = append(placed, out.OrderID)
					mu.Unlock()
				}
			}
		}(int64(w))
	}
	wg.Wait()

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + 1000))
			mu.Lock()
			snapshot := append([]common.OrderID(nil), placed...)
			mu.Unlock()
			for i := 0; i < opsPerWorker && len(snapshot) > 0; i++ {
				id := snapshot[rng.Intn(len(snapshot))]
				book.Cancel(id)
			}
		}(int64(w))
	}
	wg.Wait()

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if hasBid && hasAsk {
		assert.Less(t, bestBid, bestAsk)
	}
}
