// Package rpc defines the remote call surface consumed by the session manager
// and the loosely typed request/response values exchanged with WebAPI.
package rpc

import "context"

// WebAPI operation names.
const (
	OpQuerySysStatus  = "doQuerySysStatus"
	OpLoginEnc        = "doLoginEnc"
	OpShowUser        = "doShowUser"
	OpShowItemInfoExt = "doShowItemInfoExt"
	OpGetCategoryPath = "doGetCategoryPath"
	OpGetSiteJournal  = "doGetSiteJournal"
)

// Session handle parameter keys. WebAPI is not consistent about the name.
const (
	KeySessionHandle = "sessionHandle"
	KeySessionID     = "sessionId"
)

// SessionKey returns the parameter name under which op expects the session handle.
func SessionKey(op string) string {
	if op == OpGetCategoryPath {
		return KeySessionID
	}
	return KeySessionHandle
}

// Params is a request parameter object.
type Params map[string]any

// Clone returns a shallow copy of p with room for extra keys.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Invoker performs a named remote call.
type Invoker interface {
	// Invoke calls op with params and returns the decoded result.
	Invoke(ctx context.Context, op string, params Params) (Result, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, op string, params Params) (Result, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, op string, params Params) (Result, error) {
	return f(ctx, op, params)
}
