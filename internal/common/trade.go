package common

import "fmt"

// TradeEvent is the stable event schema of §6: one per fill, delivered to
// the trade sink before the originating submit returns.
type TradeEvent struct {
	ID        TradeID
	Ts        int64
	Price     int64
	Qty       uint64
	BuyID     OrderID
	SellID    OrderID
	MakerID   OrderID
	MakerSide Side
}

func (t TradeEvent) String() string {
	return fmt.Sprintf(
		"Trade{buy=%s sell=%s price=%d qty=%d maker=%s}",
		t.BuyID, t.SellID, t.Price, t.Qty, t.MakerID,
	)
}

// TradeSink receives trade events as they occur. Implementations must not
// block indefinitely: the matching engine delivers fills synchronously,
// in the order they occurred, before Submit returns.
type TradeSink interface {
	OnTrade(TradeEvent)
}

// TradeSinkFunc adapts a function to a TradeSink.
type TradeSinkFunc func(TradeEvent)

func (f TradeSinkFunc) OnTrade(e TradeEvent) { f(e) }

// NullSink discards every trade; useful for dry runs and tests that only
// care about book state.
type NullSink struct{}

func (NullSink) OnTrade(TradeEvent) {}

// CollectingSink appends every trade into a slice; intended for tests.
type CollectingSink struct {
	Events []TradeEvent
}

func (s *CollectingSink) OnTrade(e TradeEvent) {
	s.Events = append(s.Events, e)
}
