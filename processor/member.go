package processor

import (
	"reflect"
	"sync/atomic"
)

// member pairs a registered processor with the last "continue" answer it
// gave. One member is created per registration; the answer survives the
// async boundary of the parallel strategies.
type member[E any] struct {
	proc      Processor[E]
	keepGoing atomic.Bool
}

func newMember[E any](p Processor[E]) *member[E] {
	m := &member[E]{proc: p}
	m.keepGoing.Store(true)
	return m
}

// sameProcessor reports whether a and b hold the same processor. Values of
// non-comparable dynamic types are never equal.
func sameProcessor(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func indexOf[E any](members []*member[E], p any) int {
	for i, m := range members {
		if sameProcessor(m.proc, p) {
			return i
		}
	}
	return -1
}

func without[E any](members []*member[E], i int) []*member[E] {
	out := make([]*member[E], 0, len(members)-1)
	out = append(out, members[:i]...)
	return append(out, members[i+1:]...)
}

// processorContainer is implemented by composite processors so that Add can
// refuse membership cycles.
type processorContainer interface {
	containsProcessor(target any) bool
}
