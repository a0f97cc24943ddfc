package common

import "github.com/google/uuid"

// OrderID uniquely identifies an order for the lifetime of the book.
type OrderID = uuid.UUID

// TradeID uniquely identifies a single fill.
type TradeID = uuid.UUID

// Side distinguishes bid (buy) from ask (sell) interest.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "Bid"
	}
	return "Ask"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType tags the matching and resting semantics an order carries.
// The matching engine dispatches on this tag rather than through
// per-type subtypes, per the tagged-variant pattern.
type OrderType int

const (
	Limit OrderType = iota
	PostOnly
	IOC
	FOK
	GTD
	Iceberg
	Reserve
	MarketToLimit
	Pegged
	TrailingStop
	Stop
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "Limit"
	case PostOnly:
		return "PostOnly"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTD:
		return "GTD"
	case Iceberg:
		return "Iceberg"
	case Reserve:
		return "Reserve"
	case MarketToLimit:
		return "MarketToLimit"
	case Pegged:
		return "Pegged"
	case TrailingStop:
		return "TrailingStop"
	case Stop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Conditional reports whether the type rests in the conditional-order
// store (stop / trailing-stop) instead of directly on a book side.
func (t OrderType) Conditional() bool {
	return t == TrailingStop || t == Stop
}

// Reserved reports whether the type hides quantity behind a visible slice.
func (t OrderType) Reserved() bool {
	return t == Iceberg || t == Reserve
}

// Status is the lifecycle state of an order.
type Status int

const (
	Pending Status = iota
	Resting
	PartiallyFilled
	Filled
	Cancelled
	Expired
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Resting:
		return "Resting"
	case PartiallyFilled:
		return "PartiallyFilled"
	case Filled:
		return "Filled"
	case Cancelled:
		return "Cancelled"
	case Expired:
		return "Expired"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status can never transition further.
func (s Status) Terminal() bool {
	switch s {
	case Filled, Cancelled, Expired, Rejected:
		return true
	default:
		return false
	}
}

// PegReference names the price an order's offset is measured from.
type PegReference int

const (
	PegNone PegReference = iota
	PegBestBid
	PegBestAsk
	PegLastTrade
)

// RejectReason enumerates the taxonomy of §7.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectPostOnlyWouldCross
	RejectFokUnsatisfiable
	RejectMarketToLimitNoLiquidity
	RejectInvalidQuantity
	RejectInvalidPrice
	RejectUnknownOrderType
	RejectDuplicateID
	RejectExpired
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return ""
	case RejectPostOnlyWouldCross:
		return "PostOnlyWouldCross"
	case RejectFokUnsatisfiable:
		return "FokUnsatisfiable"
	case RejectMarketToLimitNoLiquidity:
		return "MarketToLimitNoLiquidity"
	case RejectInvalidQuantity:
		return "InvalidQuantity"
	case RejectInvalidPrice:
		return "InvalidPrice"
	case RejectUnknownOrderType:
		return "UnknownOrderType"
	case RejectDuplicateID:
		return "DuplicateId"
	case RejectExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}
