package engine

import (
	"sync"

	"github.com/rs/zerolog"

	"fenrir/internal/book"
	"fenrir/internal/clock"
	"fenrir/internal/common"
	"fenrir/internal/idgen"
	"fenrir/internal/metrics"
)

// Book is C7: the façade that owns both sides of one symbol's ladder, the
// global id index, and the conditional-order store, and dispatches the
// public submit/cancel/modify/snapshot surface of §6. Instantiate one per
// symbol; every oracle is injected, so nothing here is process-global
// (§9's "forbid process-wide singletons").
type Book struct {
	bids *book.Side
	asks *book.Side
	idx  *book.Index

	clock clock.Source
	ids   idgen.Allocator
	sink  common.TradeSink
	stats *metrics.Stats
	log   zerolog.Logger

	matcher     *Matcher
	conditional *conditionalStore

	peggedMu      sync.Mutex
	peggedResting map[common.OrderID]*common.Order

	lastTradeMu    sync.Mutex
	lastTradePrice int64
	hasLastTrade   bool
}

// Option configures a Book at construction time.
type Option func(*Book)

func WithStats(stats *metrics.Stats) Option {
	return func(b *Book) { b.stats = stats }
}

func WithLogger(log zerolog.Logger) Option {
	return func(b *Book) { b.log = log }
}

// NewBook constructs an empty single-symbol book. clk, ids and sink are
// the injected time oracle, id allocator, and trade sink (§1's "a time
// oracle, an identifier source, and a trade-event sink are injected").
func NewBook(clk clock.Source, ids idgen.Allocator, sink common.TradeSink, opts ...Option) *Book {
	b := &Book{
		bids:          book.NewSide(common.Bid),
		asks:          book.NewSide(common.Ask),
		idx:           book.NewIndex(),
		clock:         clk,
		ids:           ids,
		sink:          sink,
		stats:         metrics.New(),
		log:           zerolog.Nop(),
		conditional:   newConditionalStore(),
		peggedResting: make(map[common.OrderID]*common.Order),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.matcher = NewMatcher(clk, ids, instrumentedSink{inner: sink, stats: b.stats}, b.log)
	return b
}

// instrumentedSink folds every trade into the book's metrics before
// forwarding to the caller's real sink.
type instrumentedSink struct {
	inner common.TradeSink
	stats *metrics.Stats
}

func (s instrumentedSink) OnTrade(t common.TradeEvent) {
	s.stats.RecordTrade(t.Qty)
	if s.inner != nil {
		s.inner.OnTrade(t)
	}
}

func (b *Book) sideFor(side common.Side) (own, opp *book.Side) {
	if side == common.Bid {
		return b.bids, b.asks
	}
	return b.asks, b.bids
}

func defaultReplenish(order *common.Order) uint64 {
	if order.QtyReplenish > 0 {
		return order.QtyReplenish
	}
	return order.QtyVisible
}

// Submit validates, classifies and (where applicable) matches an incoming
// order, then rests or discards the remainder per the type-specific
// policy table of §4.4.
func (b *Book) Submit(spec OrderSpec) OutcomeReport {
	b.stats.IncSubmitted()

	if spec.QtyTotal == 0 {
		b.stats.IncRejected()
		return OutcomeReport{Status: common.Rejected, RejectReason: common.RejectInvalidQuantity}
	}
	if spec.Type.Conditional() {
		if spec.StopTrigger == 0 && spec.TrailOffset == 0 {
			b.stats.IncRejected()
			return OutcomeReport{Status: common.Rejected, RejectReason: common.RejectInvalidPrice}
		}
	} else if spec.Price <= 0 && spec.Type != common.MarketToLimit {
		b.stats.IncRejected()
		return OutcomeReport{Status: common.Rejected, RejectReason: common.RejectInvalidPrice}
	}

	now := b.clock.Now()
	if spec.TIFExpiry != nil && now > *spec.TIFExpiry {
		b.stats.IncRejected()
		return OutcomeReport{Status: common.Rejected, RejectReason: common.RejectExpired}
	}

	order := &common.Order{
		ID:            b.ids.NewID(),
		Side:          spec.Side,
		Price:         spec.Price,
		Type:          spec.Type,
		QtyTotal:      spec.QtyTotal,
		QtyRemaining:  spec.QtyTotal,
		QtyVisible:    spec.QtyTotal,
		QtyReplenish:  spec.QtyReplenish,
		ReplenishRule: spec.ReplenishRule,
		TIFExpiry:     spec.TIFExpiry,
		EnqueueTS:     now,
		Status:        common.Pending,
		Owner:         spec.Owner,
		PegRef:        spec.PegRef,
		PegOffset:     spec.PegOffset,
		TrailOffset:   spec.TrailOffset,
		StopTrigger:   spec.StopTrigger,
	}
	if spec.Type.Reserved() && spec.QtyVisible > 0 && spec.QtyVisible < spec.QtyTotal {
		order.QtyVisible = spec.QtyVisible
	}
	if spec.Type.Reserved() && order.QtyReplenish == 0 {
		// Seed the replenish-to size from the order's own initial visible
		// slice before anything can fill it: defaultReplenish must not read
		// QtyVisible once matching has started, since Order.Fill zeroes it
		// before Replenish is ever called.
		order.QtyReplenish = order.QtyVisible
	}

	if order.Type.Conditional() {
		order.TrailAnchor = spec.Price
		order.Status = common.Resting
		b.conditional.add(order)
		return OutcomeReport{OrderID: order.ID, Status: common.Resting}
	}

	own, opp := b.sideFor(order.Side)

	lastTrade, hasLastTrade := b.readLastTrade()
	outcome, reject := b.matcher.Run(order, opp, own, lastTrade, hasLastTrade, defaultReplenish)

	if reject != common.RejectNone {
		b.stats.IncRejected()
		order.SetStatus(common.Rejected)
		return OutcomeReport{OrderID: order.ID, Status: common.Rejected, RejectReason: reject}
	}

	if len(outcome.trades) > 0 {
		b.recordLastTrade(outcome.trades[len(outcome.trades)-1].Price)
		b.reevaluateReferences()
	}

	report := OutcomeReport{OrderID: order.ID, Trades: outcome.trades}

	remaining := order.Remaining()
	switch order.Type {
	case common.IOC:
		if remaining > 0 {
			order.SetStatus(common.Cancelled)
		}
		report.Status = order.GetStatus()
		return report
	case common.FOK:
		checkInvariant(remaining == 0, "Matcher.Run",
			"FOK order left with nonzero remaining quantity despite RejectNone")
		report.Status = order.GetStatus()
		return report
	}

	if remaining == 0 {
		report.Status = order.GetStatus()
		return report
	}

	// Limit / GTD / MarketToLimit(converted) / Iceberg / Reserve / Pegged
	// all rest their remainder.
	if order.Type == common.Pegged {
		if target, _, ok := b.matcher.acceptablePrice(order, opp, own, lastTrade, hasLastTrade); ok {
			order.Price = target
		}
	}
	if order.Type == common.MarketToLimit && len(outcome.trades) > 0 {
		// Convert the remainder into a limit at the price that filled first.
		order.Price = outcome.trades[0].Price
	}
	order.SetStatus(common.Resting)
	own.InsertOrder(order, now)
	b.idx.Put(order.ID, book.Locator{Side: order.Side, Price: order.Price})
	if order.Type == common.Pegged {
		b.peggedMu.Lock()
		b.peggedResting[order.ID] = order
		b.peggedMu.Unlock()
	}

	report.Status = common.Resting
	report.HasRestPrice = true
	report.RestPrice = order.Price
	return report
}

// Cancel removes a resting (or conditional) order by id.
func (b *Book) Cancel(id common.OrderID) CancelOutcome {
	if order, ok := b.conditional.remove(id); ok {
		order.SetStatus(common.Cancelled)
		b.stats.IncCancelled()
		return CancelOutcome{Result: Cancelled, FinalState: common.Cancelled}
	}

	loc, ok := b.idx.Get(id)
	if !ok {
		return CancelOutcome{Result: NotFound}
	}

	side, _ := b.sideFor(loc.Side)
	order, removed := side.RemoveOrder(loc.Price, id, b.clock.Now())
	if !removed {
		// Either already terminal (consumed by a fill) or a racing cancel
		// already took it; the index still points here until the caller
		// that did remove it also clears the index.
		existing, known := b.idx.Get(id)
		_ = existing
		if !known {
			return CancelOutcome{Result: NotFound}
		}
		return CancelOutcome{Result: AlreadyTerminal, FinalState: common.Filled}
	}

	b.idx.Delete(id)
	b.peggedMu.Lock()
	delete(b.peggedResting, id)
	b.peggedMu.Unlock()

	if order.Expired(b.clock.Now()) {
		order.SetStatus(common.Expired)
		return CancelOutcome{Result: AlreadyTerminal, FinalState: common.Expired}
	}

	if !order.CompareAndSetStatus(common.Resting, common.Cancelled) {
		order.CompareAndSetStatus(common.PartiallyFilled, common.Cancelled)
	}
	b.stats.IncCancelled()
	return CancelOutcome{Result: Cancelled, FinalState: common.Cancelled}
}

// Modify applies a quantity-decrease to a resting order, preserving time
// priority; any other change must be done as cancel+new by the caller.
func (b *Book) Modify(id common.OrderID, newQty uint64) ModifyOutcome {
	loc, ok := b.idx.Get(id)
	if !ok {
		if _, ok := b.conditional.get(id); ok {
			return ModifyOutcome{Result: ModifyRejected}
		}
		return ModifyOutcome{Result: ModifyNotFound}
	}

	side, _ := b.sideFor(loc.Side)
	level, ok := side.LevelAt(loc.Price)
	if !ok {
		return ModifyOutcome{Result: ModifyNotFound}
	}
	order, ok := level.Get(id)
	if !ok {
		return ModifyOutcome{Result: ModifyNotFound}
	}

	if order.GetStatus().Terminal() {
		return ModifyOutcome{Result: ModifyAlreadyTerminal, FinalState: order.GetStatus()}
	}

	if err := order.DecreaseQuantity(newQty); err != nil {
		return ModifyOutcome{Result: ModifyRejected}
	}
	return ModifyOutcome{Result: Modified, FinalState: order.GetStatus()}
}

// BestBid/BestAsk return the current top-of-book price on each side.
func (b *Book) BestBid() (int64, bool) { return b.bids.BestPrice() }
func (b *Book) BestAsk() (int64, bool) { return b.asks.BestPrice() }

// Snapshot returns up to depth price levels per side plus top-of-book.
func (b *Book) Snapshot(depth int) MarketSnapshot {
	snap := MarketSnapshot{Timestamp: b.clock.Now()}
	for _, lvl := range b.bids.Depth(depth) {
		snap.Bids = append(snap.Bids, DepthRow{Price: lvl.Price, Qty: lvl.VisibleQty, OrderCount: lvl.OrderCount})
	}
	for _, lvl := range b.asks.Depth(depth) {
		snap.Asks = append(snap.Asks, DepthRow{Price: lvl.Price, Qty: lvl.VisibleQty, OrderCount: lvl.OrderCount})
	}
	snap.BestBid, snap.HasBid = b.bids.BestPrice()
	snap.BestAsk, snap.HasAsk = b.asks.BestPrice()
	return snap
}

func (b *Book) readLastTrade() (int64, bool) {
	b.lastTradeMu.Lock()
	defer b.lastTradeMu.Unlock()
	return b.lastTradePrice, b.hasLastTrade
}

func (b *Book) recordLastTrade(price int64) {
	b.lastTradeMu.Lock()
	b.lastTradePrice = price
	b.hasLastTrade = true
	b.lastTradeMu.Unlock()
}

// reevaluateReferences re-prices resting Pegged orders and activates any
// Stop/TrailingStop order whose trigger now holds. It runs only from
// Submit, after a submission produced trades; a change of best bid or best
// ask caused by an order resting or being cancelled without trading does
// not run it.
func (b *Book) reevaluateReferences() {
	bestBid, hasBid := b.bids.BestPrice()
	bestAsk, hasAsk := b.asks.BestPrice()

	b.conditional.updateTrailingAnchors(bestBid, hasBid, bestAsk, hasAsk)

	b.repricePegged()

	for _, order := range b.conditional.triggered(bestBid, hasBid, bestAsk, hasAsk) {
		b.activateConditional(order)
	}
}

// repricePegged removes and reinserts every resting pegged order whose
// target price has moved, losing time priority on each re-price — the
// deliberate eager-reinsert choice of §4.4/§12.
func (b *Book) repricePegged() {
	b.peggedMu.Lock()
	orders := make([]*common.Order, 0, len(b.peggedResting))
	for _, o := range b.peggedResting {
		orders = append(orders, o)
	}
	b.peggedMu.Unlock()

	for _, order := range orders {
		own, opp := b.sideFor(order.Side)
		lastTrade, hasLastTrade := b.readLastTrade()
		target, _, ok := b.matcher.acceptablePrice(order, opp, own, lastTrade, hasLastTrade)
		if !ok || target == order.Price {
			continue
		}
		now := b.clock.Now()
		if _, removed := own.RemoveOrder(order.Price, order.ID, now); !removed {
			continue
		}
		order.Price = target
		order.EnqueueTS = now
		own.InsertOrder(order, now)
		b.idx.Put(order.ID, book.Locator{Side: order.Side, Price: target})
	}
}

// activateConditional re-submits a fired Stop/TrailingStop order as an
// IOC at its trigger price, the conventional "stop becomes a marketable
// order" semantics.
func (b *Book) activateConditional(order *common.Order) {
	own, opp := b.sideFor(order.Side)
	lastTrade, hasLastTrade := b.readLastTrade()

	activated := &common.Order{
		ID:           order.ID,
		Side:         order.Side,
		Price:        order.StopTrigger,
		Type:         common.IOC,
		QtyTotal:     order.QtyTotal,
		QtyRemaining: order.QtyRemaining,
		QtyVisible:   order.QtyRemaining,
		EnqueueTS:    b.clock.Now(),
		Status:       common.Pending,
		Owner:        order.Owner,
	}
	if order.Type == common.TrailingStop {
		activated.Price = order.TrailAnchor + order.TrailOffset
	}

	outcome, reject := b.matcher.Run(activated, opp, own, lastTrade, hasLastTrade, defaultReplenish)
	if reject != common.RejectNone {
		activated.SetStatus(common.Rejected)
		return
	}
	if len(outcome.trades) > 0 {
		b.recordLastTrade(outcome.trades[len(outcome.trades)-1].Price)
	}
	if activated.Remaining() > 0 {
		activated.SetStatus(common.Cancelled)
	} else {
		activated.SetStatus(common.Filled)
	}
}
