// Package metrics implements C8: simple throughput/depth counters for the
// book, grounded on the atomics-behind-a-getter shape of
// abdoElHodaky-tradSys's EngineStats, without that repo's unsafe-pointer
// lock-free map (see DESIGN.md).
package metrics

import "sync/atomic"

// Stats holds process-lifetime counters for one Book. All fields are
// independent atomics; there is no cross-field consistency guarantee
// beyond each counter's own monotonic accumulation.
type Stats struct {
	ordersSubmitted atomic.Uint64
	ordersRejected  atomic.Uint64
	ordersCancelled atomic.Uint64
	tradesExecuted  atomic.Uint64
	qtyTraded       atomic.Uint64

	matchNanosSum   atomic.Uint64
	matchSampleCont atomic.Uint64
}

func New() *Stats {
	return &Stats{}
}

func (s *Stats) IncSubmitted() { s.ordersSubmitted.Add(1) }
func (s *Stats) IncRejected()  { s.ordersRejected.Add(1) }
func (s *Stats) IncCancelled() { s.ordersCancelled.Add(1) }

// RecordTrade folds one fill into the trade counters.
func (s *Stats) RecordTrade(qty uint64) {
	s.tradesExecuted.Add(1)
	s.qtyTraded.Add(qty)
}

// RecordMatchLatency folds one submit-to-return duration (nanoseconds)
// into the running average.
func (s *Stats) RecordMatchLatency(nanos int64) {
	if nanos < 0 {
		return
	}
	s.matchNanosSum.Add(uint64(nanos))
	s.matchSampleCont.Add(1)
}

// Snapshot is a point-in-time, race-free copy of every counter.
type Snapshot struct {
	OrdersSubmitted   uint64
	OrdersRejected    uint64
	OrdersCancelled   uint64
	TradesExecuted    uint64
	QtyTraded         uint64
	AvgMatchLatencyNs float64
}

func (s *Stats) Snapshot() Snapshot {
	samples := s.matchSampleCont.Load()
	var avg float64
	if samples > 0 {
		avg = float64(s.matchNanosSum.Load()) / float64(samples)
	}
	return Snapshot{
		OrdersSubmitted:   s.ordersSubmitted.Load(),
		OrdersRejected:    s.ordersRejected.Load(),
		OrdersCancelled:   s.ordersCancelled.Load(),
		TradesExecuted:    s.tradesExecuted.Load(),
		QtyTraded:         s.qtyTraded.Load(),
		AvgMatchLatencyNs: avg,
	}
}
