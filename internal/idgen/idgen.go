// Package idgen supplies the injected order/trade id allocator (§9).
package idgen

import (
	"sync/atomic"

	"github.com/google/uuid"

	"fenrir/internal/common"
)

// Allocator mints unique 128-bit identifiers.
type Allocator interface {
	NewID() common.OrderID
}

// UUIDAllocator is the production Allocator, grounded on the teacher's
// own use of github.com/google/uuid in internal/net/messages.go.
type UUIDAllocator struct{}

func NewUUIDAllocator() UUIDAllocator { return UUIDAllocator{} }

func (UUIDAllocator) NewID() common.OrderID {
	return uuid.New()
}

// Sequential is a deterministic Allocator for tests: ids are UUIDs derived
// from a monotonically increasing counter so that fixture expectations are
// stable and reproducible across runs.
type Sequential struct {
	counter atomic.Uint64
}

func NewSequential() *Sequential {
	return &Sequential{}
}

func (s *Sequential) NewID() common.OrderID {
	n := s.counter.Add(1)
	var id common.OrderID
	id[8] = byte(n >> 56)
	id[9] = byte(n >> 48)
	id[10] = byte(n >> 40)
	id[11] = byte(n >> 32)
	id[12] = byte(n >> 24)
	id[13] = byte(n >> 16)
	id[14] = byte(n >> 8)
	id[15] = byte(n)
	return id
}
