package common

import (
	"fmt"
	"sync"
)

// FillRecord is a small accounting entry kept on an order so that a
// custom replenishment rule can inspect prior fill history deterministically.
type FillRecord struct {
	Qty       uint64
	Price     int64
	Timestamp int64
}

// ReplenishRule computes the next visible quantity for a reserve/iceberg
// order once its visible slice has been exhausted. A nil rule means "use
// the default": visible resets to the order's original QtyVisible (or
// QtyReplenish when the caller asked for a different increment).
type ReplenishRule func(order *Order, history []FillRecord) uint64

// Order is the immutable-after-creation descriptor of an order's semantics,
// except for the fields §3 calls out as mutable: QtyRemaining, QtyVisible,
// Status, and (for pegged/trailing) the anchor price. Mutation of those
// fields is serialized by the embedded mutex so that a partial fill, a
// status transition, and a replenishment step are never observed torn by a
// concurrent cancel or a concurrent peek.
type Order struct {
	mu sync.Mutex

	ID    OrderID
	Side  Side
	Price int64 // limit price in ticks; unused (zero) for Stop/TrailingStop, which key off StopTrigger/TrailOffset instead
	Type  OrderType

	QtyTotal      uint64
	QtyRemaining  uint64
	QtyVisible    uint64
	QtyReplenish  uint64
	ReplenishRule ReplenishRule

	TIFExpiry *int64 // monotonic-ns deadline; nil means no expiry
	EnqueueTS int64  // monotonic ns assigned at rest time; defines time priority

	Status Status
	Owner  string

	PegRef      PegReference
	PegOffset   int64
	TrailOffset int64
	TrailAnchor int64 // best price observed since the trailing order was accepted
	StopTrigger int64

	FillHistory []FillRecord
}

// Remaining returns the live remaining quantity.
func (o *Order) Remaining() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.QtyRemaining
}

// Visible returns the live visible quantity.
func (o *Order) Visible() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.QtyVisible
}

// GetStatus returns the live status.
func (o *Order) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Status
}

// SetStatus transitions the order to a new status.
func (o *Order) SetStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Status = s
}

// CompareAndSetStatus transitions only if the current status matches from.
func (o *Order) CompareAndSetStatus(from, to Status) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Status != from {
		return false
	}
	o.Status = to
	return true
}

// Fill applies a maker-side fill of qty against both the visible and
// remaining quantity, recording fill history and returning the new
// remaining quantity plus whether the visible slice hit zero while hidden
// quantity is still outstanding (the replenishment trigger of §4.6).
func (o *Order) Fill(qty uint64, price int64, ts int64) (remaining uint64, needsReplenish bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if qty > o.QtyVisible {
		qty = o.QtyVisible
	}
	o.QtyVisible -= qty
	o.QtyRemaining -= qty
	o.FillHistory = append(o.FillHistory, FillRecord{Qty: qty, Price: price, Timestamp: ts})

	switch {
	case o.QtyRemaining == 0:
		o.Status = Filled
	default:
		o.Status = PartiallyFilled
	}

	needsReplenish = o.QtyRemaining > 0 && o.QtyVisible == 0 && o.Type.Reserved()
	return o.QtyRemaining, needsReplenish
}

// Replenish resets the visible quantity per the order's replenishment rule
// (or the default: original QtyVisible / QtyReplenish) and assigns a new
// enqueue timestamp, losing time priority as §4.6 requires.
func (o *Order) Replenish(defaultVisible uint64, ts int64) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := defaultVisible
	if o.QtyReplenish > 0 {
		next = o.QtyReplenish
	}
	if o.ReplenishRule != nil {
		next = o.ReplenishRule(o, o.FillHistory)
	}
	if next > o.QtyRemaining {
		next = o.QtyRemaining
	}
	o.QtyVisible = next
	o.EnqueueTS = ts
	o.Status = Resting
	return next
}

// DecreaseQuantity applies a quantity-decrease modification, preserving
// time priority. Any increase must be handled by the caller as a
// cancel-replace.
func (o *Order) DecreaseQuantity(newQty uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if newQty > o.QtyRemaining {
		return fmt.Errorf("%w: modify target %d exceeds remaining %d", ErrInvalidQuantity, newQty, o.QtyRemaining)
	}
	delta := o.QtyRemaining - newQty
	o.QtyRemaining = newQty
	if o.QtyVisible > o.QtyRemaining {
		o.QtyVisible = o.QtyRemaining
	}
	_ = delta
	return nil
}

// Expired reports whether a GTD deadline has passed as of now (monotonic ns).
func (o *Order) Expired(now int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.TIFExpiry != nil && now > *o.TIFExpiry
}

func (o *Order) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf(
		"Order{id=%s side=%s type=%s price=%d remaining=%d/%d visible=%d status=%s}",
		o.ID, o.Side, o.Type, o.Price, o.QtyRemaining, o.QtyTotal, o.QtyVisible, o.Status,
	)
}

// Snapshot is a read-only, race-free copy of an order's public fields for
// use by snapshot/reporting code that must not hold the order's lock.
type Snapshot struct {
	ID           OrderID
	Side         Side
	Price        int64
	Type         OrderType
	QtyTotal     uint64
	QtyRemaining uint64
	QtyVisible   uint64
	EnqueueTS    int64
	Status       Status
	Owner        string
}

func (o *Order) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		ID:           o.ID,
		Side:         o.Side,
		Price:        o.Price,
		Type:         o.Type,
		QtyTotal:     o.QtyTotal,
		QtyRemaining: o.QtyRemaining,
		QtyVisible:   o.QtyVisible,
		EnqueueTS:    o.EnqueueTS,
		Status:       o.Status,
		Owner:        o.Owner,
	}
}
