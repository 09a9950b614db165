package agent

import (
	"context"
	"sync"
	"testing"
)

var testContexts sync.Map // *testing.T -> context.Context

// testContext mirrors testing.T.Context (Go 1.24+): it returns the same
// context for every call within a test, canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	if ctx, ok := testContexts.Load(t); ok {
		return ctx.(context.Context)
	}
	ctx, cancel := context.WithCancel(context.Background())
	actual, loaded := testContexts.LoadOrStore(t, ctx)
	if loaded {
		cancel()
		return actual.(context.Context)
	}
	t.Cleanup(func() {
		cancel()
		testContexts.Delete(t)
	})
	return ctx
}
