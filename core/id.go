package core

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator mints identifiers for components and units that were not given
// one explicitly.
type IDGenerator interface {
	NewID(prefix string) string
}

// UUIDGenerator produces "<prefix>-<uuid>" ids.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

// SequenceGenerator produces "<prefix>-<n>" ids from its own counter.
// Two generators never share state.
type SequenceGenerator struct {
	next atomic.Uint64
}

func NewSequenceGenerator() *SequenceGenerator { return &SequenceGenerator{} }

func (g *SequenceGenerator) NewID(prefix string) string {
	n := g.next.Add(1)
	if prefix == "" {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}
