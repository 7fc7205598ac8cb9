// Package rpctest provides a scriptable rpc.Invoker for tests.
package rpctest

import (
	"context"
	"fmt"
	"sync"

	"github.com/and161185/allegro-webapi/internal/rpc"
)

// HandlerFunc answers a single operation.
type HandlerFunc func(ctx context.Context, params rpc.Params) (rpc.Result, error)

// Call is a recorded invocation.
type Call struct {
	Op     string
	Params rpc.Params
}

// Invoker records every call and dispatches to per-operation handlers.
// Operations without a handler fail.
type Invoker struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
}

// New returns an empty Invoker.
func New() *Invoker {
	return &Invoker{handlers: map[string]HandlerFunc{}}
}

// Handle installs fn for op, replacing any previous handler.
func (f *Invoker) Handle(op string, fn HandlerFunc) *Invoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[op] = fn
	return f
}

// Return installs a handler that always answers res.
func (f *Invoker) Return(op string, res rpc.Result) *Invoker {
	return f.Handle(op, func(context.Context, rpc.Params) (rpc.Result, error) { return res, nil })
}

// Fail installs a handler that always fails with err.
func (f *Invoker) Fail(op string, err error) *Invoker {
	return f.Handle(op, func(context.Context, rpc.Params) (rpc.Result, error) { return nil, err })
}

// Invoke implements rpc.Invoker.
func (f *Invoker) Invoke(ctx context.Context, op string, params rpc.Params) (rpc.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Params: params.Clone()})
	h, ok := f.handlers[op]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rpctest: no handler for %s", op)
	}
	return h(ctx, params)
}

// Calls returns recorded params for op in call order.
func (f *Invoker) Calls(op string) []rpc.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpc.Params
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c.Params)
		}
	}
	return out
}

// Count returns how many times op was invoked.
func (f *Invoker) Count(op string) int { return len(f.Calls(op)) }

// Order returns operation names in call order.
func (f *Invoker) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

// WebAPI installs the status and login answers used across tests:
// verKey 123456, session handle "session1", user id 1.
func WebAPI() *Invoker {
	return New().
		Return(rpc.OpQuerySysStatus, rpc.Result{"info": "1.0.0", "verKey": 123456}).
		Return(rpc.OpLoginEnc, rpc.Result{"sessionHandlePart": "session1", "userId": 1})
}
