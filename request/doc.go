// Package request defines the shared request-state object that the
// engine package drives to completion: its configuration snapshot,
// its status machine, its stream adapters, and the builder and handle
// types callers use to submit and observe it.
//
// A caller builds a request with [Builder], then calls [Builder.Send]
// to obtain a [Handle]. The returned handle is a small, copyable value;
// the underlying state is shared and is safe to observe from any
// goroutine.
package request
