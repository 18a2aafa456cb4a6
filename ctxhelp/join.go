// Package ctxhelp has small helpers for tying session lifetimes to the
// server's lifetime.
package ctxhelp

import "context"

// Join returns a context that is canceled as soon as either parent is. The
// cause is the first parent's cause. Once the joined context is done, for
// whatever reason, it stops watching both parents, so dropping the returned
// cancel doesn't leave anything registered on a long lived parent.
func Join(ctx1, ctx2 context.Context) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())

	stop1 := context.AfterFunc(ctx1, func() { cancel(context.Cause(ctx1)) })
	stop2 := context.AfterFunc(ctx2, func() { cancel(context.Cause(ctx2)) })
	context.AfterFunc(ctx, func() {
		stop1()
		stop2()
	})

	return ctx, cancel
}
