package engine

import (
	"github.com/rs/zerolog"

	"fenrir/internal/book"
	"fenrir/internal/clock"
	"fenrir/internal/common"
	"fenrir/internal/idgen"
)

// Matcher implements C6: the aggressive-matching algorithm of §4.4. It is
// stateless across calls — all state lives in the Sides and Orders it is
// handed — so one Matcher can be shared by every Book if ever needed, but
// in practice each Book owns its own.
type Matcher struct {
	clock clock.Source
	ids   idgen.Allocator
	sink  common.TradeSink
	log   zerolog.Logger
}

func NewMatcher(clk clock.Source, ids idgen.Allocator, sink common.TradeSink, log zerolog.Logger) *Matcher {
	return &Matcher{clock: clk, ids: ids, sink: sink, log: log}
}

// matchOutcome is the internal result of a single aggressive walk.
type matchOutcome struct {
	filled uint64
	trades []common.TradeEvent
}

// acceptablePrice computes P* (§4.4 step 1): the maximum (bid) / minimum
// (ask) opposing price the incoming order may trade at.
func (m *Matcher) acceptablePrice(incoming *common.Order, opp, own *book.Side, lastTrade int64, hasLastTrade bool) (price int64, hasLimit bool, ok bool) {
	switch incoming.Type {
	case common.MarketToLimit:
		best, exists := opp.BestPrice()
		if !exists {
			return 0, false, false
		}
		return best, true, true
	case common.Pegged:
		bidSide, askSide := own, opp
		if incoming.Side == common.Ask {
			bidSide, askSide = opp, own
		}
		var base int64
		var exists bool
		switch incoming.PegRef {
		case common.PegBestBid:
			base, exists = bidSide.BestPrice()
		case common.PegBestAsk:
			base, exists = askSide.BestPrice()
		case common.PegLastTrade:
			base, exists = lastTrade, hasLastTrade
		default:
			base, exists = incoming.Price, true
		}
		if !exists {
			return 0, false, false
		}
		return base + incoming.PegOffset, true, true
	default:
		return incoming.Price, true, true
	}
}

// walkAndMatch performs the actual price-then-time scan against opp,
// draining levels via Level.MatchAgainst and pruning any level emptied
// along the way once the walk (and its read lock) has ended.
func (m *Matcher) walkAndMatch(incoming *common.Order, opp *book.Side, limitPrice int64, hasLimit bool, replenishDefault func(*common.Order) uint64) matchOutcome {
	var out matchOutcome
	var emptied []*book.Level

	opp.Walk(limitPrice, hasLimit, func(level *book.Level) bool {
		res := level.MatchAgainst(incoming, m.clock, m.ids, m.sink, replenishDefault)
		out.filled += res.FilledQty
		out.trades = append(out.trades, res.Trades...)
		if level.Empty() {
			emptied = append(emptied, level)
		}
		return incoming.Remaining() > 0
	})

	for _, level := range emptied {
		opp.PruneEmpty(level)
	}
	return out
}

// Run executes §4.4's algorithm for one incoming order and returns the
// match outcome plus whether the order should be rejected outright (with
// no side effects: PostOnly-would-cross, FOK-unsatisfiable,
// MarketToLimit-no-liquidity).
func (m *Matcher) Run(incoming *common.Order, opp, own *book.Side, lastTrade int64, hasLastTrade bool, replenishDefault func(*common.Order) uint64) (matchOutcome, common.RejectReason) {
	price, hasLimit, ok := m.acceptablePrice(incoming, opp, own, lastTrade, hasLastTrade)
	if !ok {
		if incoming.Type == common.MarketToLimit {
			return matchOutcome{}, common.RejectMarketToLimitNoLiquidity
		}
		// Nothing crosses; not a rejection by itself for resting types.
		return matchOutcome{}, common.RejectNone
	}

	if incoming.Type == common.PostOnly {
		if opp.Crosses(price) {
			return matchOutcome{}, common.RejectPostOnlyWouldCross
		}
		return matchOutcome{}, common.RejectNone
	}

	if incoming.Type == common.FOK {
		var out matchOutcome
		var emptied []*book.Level
		reject := common.RejectNone
		opp.WithReadGuard(func() {
			sum := opp.SumVisibleLocked(price, hasLimit)
			if sum < incoming.Remaining() {
				reject = common.RejectFokUnsatisfiable
				return
			}
			opp.WalkLocked(price, hasLimit, func(level *book.Level) bool {
				res := level.MatchAgainst(incoming, m.clock, m.ids, m.sink, replenishDefault)
				out.filled += res.FilledQty
				out.trades = append(out.trades, res.Trades...)
				if level.Empty() {
					emptied = append(emptied, level)
				}
				return incoming.Remaining() > 0
			})
		})
		// PruneEmpty takes the write lock; it must run only after
		// WithReadGuard has released the read lock above, or it deadlocks
		// against itself (sync.RWMutex is not reentrant).
		for _, level := range emptied {
			opp.PruneEmpty(level)
		}
		return out, reject
	}

	out := m.walkAndMatch(incoming, opp, price, hasLimit, replenishDefault)
	return out, common.RejectNone
}
