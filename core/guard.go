package core

import (
	"context"
	"runtime/debug"
)

// RunGuarded runs body and converts a returned error or a panic into a
// *ProcessingFailure attributed to source/member. It returns nil on success.
func RunGuarded(ctx context.Context, source, member string, body func(ctx context.Context) error) (failure *ProcessingFailure) {
	defer func() {
		if rec := recover(); rec != nil {
			failure = NewPanicFailure(source, member, rec, debug.Stack())
		}
	}()
	if err := body(ctx); err != nil {
		return &ProcessingFailure{Source: source, Member: member, Err: err}
	}
	return nil
}
