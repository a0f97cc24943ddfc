// Package engine implements C6 (MatchingEngine) and C7 (OrderBook façade):
// the algorithm that walks the opposing side in price-time priority and
// the public surface (submit/cancel/modify/snapshot) that dispatches to it.
package engine

import (
	"fenrir/internal/common"
)

// OrderSpec is the caller-supplied description of a new order, before C1
// assigns it an id and enqueue timestamp.
type OrderSpec struct {
	Side          common.Side
	Price         int64
	Type          common.OrderType
	QtyTotal      uint64
	QtyVisible    uint64 // iceberg/reserve only; 0 means "use QtyTotal"
	QtyReplenish  uint64 // iceberg/reserve only; 0 means "use default rule"
	ReplenishRule common.ReplenishRule
	TIFExpiry     *int64 // GTD deadline, monotonic ns
	PegRef        common.PegReference
	PegOffset     int64
	TrailOffset   int64
	StopTrigger   int64
	Owner         string
}

// OutcomeReport is the total result of a submit call (§6).
type OutcomeReport struct {
	OrderID      common.OrderID
	Status       common.Status
	Trades       []common.TradeEvent
	RestPrice    int64
	HasRestPrice bool
	RejectReason common.RejectReason
}

// CancelOutcome is the total result of a cancel call.
type CancelOutcome struct {
	Result     CancelResult
	FinalState common.Status
}

type CancelResult int

const (
	Cancelled CancelResult = iota
	NotFound
	AlreadyTerminal
)

// ModifyOutcome is the total result of a modify call.
type ModifyOutcome struct {
	Result     ModifyResult
	FinalState common.Status
}

type ModifyResult int

const (
	Modified ModifyResult = iota
	ModifyNotFound
	ModifyAlreadyTerminal
	ModifyRejected
)

// DepthRow is one row of a MarketSnapshot.
type DepthRow struct {
	Price      int64
	Qty        uint64
	OrderCount int64
}

// MarketSnapshot is the result of Book.Snapshot (§6).
type MarketSnapshot struct {
	Bids      []DepthRow
	Asks      []DepthRow
	BestBid   int64
	HasBid    bool
	BestAsk   int64
	HasAsk    bool
	Timestamp int64
}
