package book

import (
	"sync"
	"sync/atomic"

	"github.com/tidwall/btree"

	"fenrir/internal/common"
)

// Side holds one side of the ladder (all bids, or all asks) as a
// price-ordered map of *Level (C5). Bids are ordered price-descending and
// asks price-ascending, so Min() always returns the best price on either
// side — the same trick the teacher's comparator uses to avoid a second
// code path for "best".
type Side struct {
	side common.Side
	tree *btree.BTreeG[*Level]
	mu   sync.RWMutex // guards structural mutation (insert/delete of a *Level)

	bestPrice atomic.Int64
	bestValid atomic.Bool
	bestGen   atomic.Uint64
}

func bidLess(a, b *Level) bool { return a.Price() > b.Price() }
func askLess(a, b *Level) bool { return a.Price() < b.Price() }

// NewSide constructs an empty Side for the given direction.
func NewSide(side common.Side) *Side {
	var less func(a, b *Level) bool
	if side == common.Bid {
		less = bidLess
	} else {
		less = askLess
	}
	s := &Side{side: side, tree: btree.NewBTreeG(less)}
	s.bestValid.Store(false)
	return s
}

// levelAt returns the Level for price, creating and inserting an empty one
// under the write lock if it does not already exist.
func (s *Side) levelAt(price int64) *Level {
	probe := NewLevel(price)

	s.mu.RLock()
	if found, ok := s.tree.Get(probe); ok {
		s.mu.RUnlock()
		return found
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if found, ok := s.tree.Get(probe); ok {
		return found
	}
	s.tree.Set(probe)
	s.invalidateBestLocked()
	return probe
}

// InsertOrder rests order at its limit price, creating the level if needed.
func (s *Side) InsertOrder(order *common.Order, now int64) {
	level := s.levelAt(order.Price)
	level.Insert(order, now)
	s.invalidateBest()
}

// RemoveOrder removes a resting order by id and price, pruning the level
// from the tree if it becomes empty.
func (s *Side) RemoveOrder(price int64, id common.OrderID, now int64) (*common.Order, bool) {
	s.mu.RLock()
	level, ok := s.tree.Get(NewLevel(price))
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	order, removed := level.Remove(id, now)
	if !removed {
		return nil, false
	}
	s.pruneIfEmpty(level)
	s.invalidateBest()
	return order, true
}

// pruneIfEmpty drops an emptied level from the tree under the write lock,
// rechecking emptiness after acquiring it (a concurrent Insert may have
// landed on the level between the caller's check and the lock).
func (s *Side) pruneIfEmpty(level *Level) {
	if !level.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if level.Empty() {
		s.tree.Delete(level)
	}
}

// PruneEmpty drops level from the tree if it is currently empty. Safe to
// call after a Walk-driven match completes (Walk itself only holds the
// read lock, so pruning must happen outside it to avoid self-deadlock).
func (s *Side) PruneEmpty(level *Level) {
	s.pruneIfEmpty(level)
}

func (s *Side) invalidateBest() {
	s.bestValid.Store(false)
	s.bestGen.Add(1)
}

func (s *Side) invalidateBestLocked() {
	s.bestValid.Store(false)
	s.bestGen.Add(1)
}

// BestPrice returns the best resting price on this side and whether the
// side is non-empty. The result is cached with a generation-validated CAS
// so that repeated best-price reads under no structural change are
// lock-free; any insert/delete/prune bumps the generation and forces a
// fresh lookup.
func (s *Side) BestPrice() (int64, bool) {
	if s.bestValid.Load() {
		return s.bestPrice.Load(), true
	}

	gen := s.bestGen.Load()
	s.mu.RLock()
	top, ok := s.tree.Min()
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	price := top.Price()

	// Only publish the cache if nothing structural happened meanwhile;
	// otherwise leave it invalid for the next reader to resolve.
	if s.bestGen.Load() == gen {
		s.bestPrice.Store(price)
		s.bestValid.Store(true)
	}
	return price, true
}

// BestLevel returns the best (top-of-book) Level, if any.
func (s *Side) BestLevel() (*Level, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Min()
}

// LevelAt returns the existing Level at price without creating one.
func (s *Side) LevelAt(price int64) (*Level, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Get(NewLevel(price))
}

// Crosses reports whether price is marketable against this side's best
// (i.e. an incoming order at price would trade immediately).
func (s *Side) Crosses(price int64) bool {
	best, ok := s.BestPrice()
	if !ok {
		return false
	}
	if s.side == common.Bid {
		return price <= best
	}
	return price >= best
}

// DepthLevel is one row of a depth snapshot.
type DepthLevel struct {
	Price      int64
	VisibleQty uint64
	OrderCount int64
}

// Depth returns up to n best levels on this side, best first.
func (s *Side) Depth(n int) []DepthLevel {
	out := make([]DepthLevel, 0, n)
	s.mu.RLock()
	defer s.mu.RUnlock()

	min, ok := s.tree.Min()
	if !ok {
		return out
	}
	s.tree.Ascend(min, func(level *Level) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, DepthLevel{
			Price:      level.Price(),
			VisibleQty: level.VisibleQty(),
			OrderCount: level.OrderCount(),
		})
		return len(out) < n
	})
	return out
}

// WithReadGuard runs fn while holding the side's structural read lock,
// blocking concurrent level insertion/pruning for the duration. This is
// what gives Fill-or-Kill its atomicity (§4.4): the dry-run liquidity sum
// and the real matching scan both run inside one guarded window, so no
// level can vanish out from under the decision between the two. Per-level
// fills (Queue/atomic operations inside Level) are untouched by this lock
// and continue concurrently.
func (s *Side) WithReadGuard(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// SumVisible returns the total visible quantity available at or better
// than limitPrice (inclusive), the quantity the FOK dry-run sums. It
// takes its own read lock; for FOK atomicity (dry-run sum and real scan
// inside one guarded window) call SumVisibleLocked from inside
// WithReadGuard instead.
func (s *Side) SumVisible(limitPrice int64, hasLimit bool) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumVisibleLocked(limitPrice, hasLimit)
}

// SumVisibleLocked is SumVisible without taking the lock; the caller must
// already hold it via WithReadGuard.
func (s *Side) SumVisibleLocked(limitPrice int64, hasLimit bool) uint64 {
	return s.sumVisibleLocked(limitPrice, hasLimit)
}

func (s *Side) sumVisibleLocked(limitPrice int64, hasLimit bool) uint64 {
	var total uint64
	min, ok := s.tree.Min()
	if !ok {
		return 0
	}
	s.tree.Ascend(min, func(level *Level) bool {
		if hasLimit {
			if s.side == common.Bid && level.Price() < limitPrice {
				return false
			}
			if s.side == common.Ask && level.Price() > limitPrice {
				return false
			}
		}
		total += level.VisibleQty()
		return true
	})
	return total
}

// Walk performs a lazy ordered scan from best price toward worse, invoking
// fn on each level whose price is acceptable for an incoming order with
// the given limit (hasLimit=false means no limit). fn returns false to
// stop early. This is §4.3's iter_matchable. It takes its own read lock;
// for FOK atomicity call WalkLocked from inside WithReadGuard instead.
func (s *Side) Walk(limitPrice int64, hasLimit bool, fn func(level *Level) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.walkLocked(limitPrice, hasLimit, fn)
}

// WalkLocked is Walk without taking the lock; the caller must already
// hold it via WithReadGuard.
func (s *Side) WalkLocked(limitPrice int64, hasLimit bool, fn func(level *Level) bool) {
	s.walkLocked(limitPrice, hasLimit, fn)
}

func (s *Side) walkLocked(limitPrice int64, hasLimit bool, fn func(level *Level) bool) {
	min, ok := s.tree.Min()
	if !ok {
		return
	}
	s.tree.Ascend(min, func(level *Level) bool {
		if hasLimit {
			if s.side == common.Bid && level.Price() < limitPrice {
				return false
			}
			if s.side == common.Ask && level.Price() > limitPrice {
				return false
			}
		}
		return fn(level)
	})
}

// Len returns the number of distinct price levels currently resting.
func (s *Side) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}
