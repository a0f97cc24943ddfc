package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fenrir/internal/common"
)

func TestSide_BestPrice_BidsDescending(t *testing.T) {
	side := NewSide(common.Bid)
	side.InsertOrder(newTestOrder(idN(1), 10), 1)

	o2 := newTestOrder(idN(2), 10)
	o2.Price = 105
	side.InsertOrder(o2, 2)

	o3 := newTestOrder(idN(3), 10)
	o3.Price = 95
	side.InsertOrder(o3, 3)

	best, ok := side.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, int64(105), best, "best bid is the highest resting price")
}

func TestSide_BestPrice_AsksAscending(t *testing.T) {
	side := NewSide(common.Ask)
	o1 := newTestOrder(idN(1), 10)
	o1.Price = 110
	side.InsertOrder(o1, 1)

	o2 := newTestOrder(idN(2), 10)
	o2.Price = 100
	side.InsertOrder(o2, 2)

	best, ok := side.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, int64(100), best, "best ask is the lowest resting price")
}

func TestSide_RemoveOrder_PrunesEmptyLevel(t *testing.T) {
	side := NewSide(common.Bid)
	order := newTestOrder(idN(1), 10)
	order.Price = 100
	side.InsertOrder(order, 1)

	removed, ok := side.RemoveOrder(100, idN(1), 2)
	assert.True(t, ok)
	assert.Equal(t, idN(1), removed.ID)

	_, ok = side.LevelAt(100)
	assert.False(t, ok, "emptied level must be pruned from the tree")

	_, ok = side.BestPrice()
	assert.False(t, ok)
}

func TestSide_Crosses(t *testing.T) {
	side := NewSide(common.Ask)
	order := newTestOrder(idN(1), 10)
	order.Price = 100
	side.InsertOrder(order, 1)

	assert.True(t, side.Crosses(101), "a bid at or above the best ask crosses")
	assert.True(t, side.Crosses(100))
	assert.False(t, side.Crosses(99))
}

func TestSide_Depth_BestFirst(t *testing.T) {
	side := NewSide(common.Bid)
	for _, p := range []int64{98, 100, 99} {
		o := newTestOrder(idN(byte(p)), 10)
		o.Price = p
		side.InsertOrder(o, 1)
	}

	depth := side.Depth(10)
	assert.Len(t, depth, 3)
	assert.Equal(t, []int64{100, 99, 98}, []int64{depth[0].Price, depth[1].Price, depth[2].Price})

	assert.Len(t, side.Depth(2), 2, "n caps the row count")
	assert.Empty(t, side.Depth(0), "n=0 returns no rows")
}

func TestSide_SumVisible_RespectsLimit(t *testing.T) {
	side := NewSide(common.Ask)
	for _, p := range []int64{100, 101, 102} {
		o := newTestOrder(idN(byte(p)), 10)
		o.Price = p
		side.InsertOrder(o, 1)
	}

	all := side.SumVisible(0, false)
	assert.Equal(t, uint64(30), all)

	limited := side.SumVisible(101, true)
	assert.Equal(t, uint64(20), limited, "only levels at or better than 101 for an ask side")
}

func TestSide_WithReadGuard_SumAndWalkAgree(t *testing.T) {
	side := NewSide(common.Ask)
	o := newTestOrder(idN(1), 10)
	o.Price = 100
	side.InsertOrder(o, 1)

	var sum uint64
	var walked int
	side.WithReadGuard(func() {
		sum = side.SumVisibleLocked(0, false)
		side.WalkLocked(0, false, func(level *Level) bool {
			walked++
			return true
		})
	})

	assert.Equal(t, uint64(10), sum)
	assert.Equal(t, 1, walked)
}

func TestSide_Walk_StopsAtLimit(t *testing.T) {
	side := NewSide(common.Bid)
	for _, p := range []int64{100, 99, 98} {
		o := newTestOrder(idN(byte(p)), 10)
		o.Price = p
		side.InsertOrder(o, 1)
	}

	var seen []int64
	side.Walk(99, true, func(level *Level) bool {
		seen = append(seen, level.Price())
		return true
	})

	assert.Equal(t, []int64{100, 99}, seen, "walk must stop before the level worse than the limit")
}
