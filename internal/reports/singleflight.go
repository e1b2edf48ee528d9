package reports

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var buildGroup singleflight.Group

// singleflightBuild collapses concurrent identical report requests
// into one computation. Not a cache: the result is dropped as soon as
// the in-flight call finishes.
func singleflightBuild(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	// The build is detached from the caller that happened to start
	// it: cancelling that one request must not fail the sharers.
	buildCtx := context.WithoutCancel(ctx)
	resultChan := buildGroup.DoChan(key, func() (interface{}, error) {
		return fn(buildCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
