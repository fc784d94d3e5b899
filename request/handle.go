package request

import "time"

// Handle is the value callers hold for a submitted request. It is a
// thin, copyable wrapper around the shared [State]; every method
// delegates to the underlying state and is safe to call concurrently
// from any goroutine, including from inside the request's own
// completion [Callback].
type Handle struct {
	state *State
}

// Status returns the request's current status.
func (h *Handle) Status() Status { return h.state.Status() }

// IsDone reports whether the request finished successfully.
func (h *Handle) IsDone() bool { return h.state.IsDone() }

// IsPending reports whether the request is still in flight.
func (h *Handle) IsPending() bool { return h.state.IsPending() }

// Progress returns the last reported transfer progress, in [0,1].
func (h *Handle) Progress() float64 { return h.state.Progress() }

// TraceID returns the correlation ID assigned to this request at
// attach time, or "" if it has not yet been attached.
func (h *Handle) TraceID() string { return h.state.TraceID() }

// Config returns the frozen configuration this request was built with.
func (h *Handle) Config() Config { return h.state.Config() }

// Cancel requests cancellation of a still-pending request. It returns
// false if the request had already reached a terminal status.
func (h *Handle) Cancel() bool { return h.state.Cancel() }

// Wait blocks the calling goroutine until the request leaves Pending.
func (h *Handle) Wait() Status { return h.state.Wait() }

// WaitFor blocks until the request leaves Pending or d elapses.
func (h *Handle) WaitFor(d time.Duration) Status { return h.state.WaitFor(d) }

// WaitUntil blocks until the request leaves Pending or deadline
// passes.
func (h *Handle) WaitUntil(deadline time.Time) Status { return h.state.WaitUntil(deadline) }

// WaitCallback blocks until the request has left Pending and its
// completion callback, if any, has finished running.
func (h *Handle) WaitCallback() Status { return h.state.WaitCallback() }

// WaitCallbackFor blocks until the callback has run or d elapses.
func (h *Handle) WaitCallbackFor(d time.Duration) Status { return h.state.WaitCallbackFor(d) }

// WaitCallbackUntil blocks until the callback has run or deadline
// passes.
func (h *Handle) WaitCallbackUntil(deadline time.Time) Status {
	return h.state.WaitCallbackUntil(deadline)
}

// Take blocks until the request is terminal, then, if it finished
// successfully, returns its response and moves the request to the
// Empty status. Calling Take a second time, or calling it on a
// request that failed, timed out, or was cancelled, returns
// [ErrResponseUnavailable].
func (h *Handle) Take() (*Response, error) { return h.state.Take() }

// Error blocks until the request is terminal and returns the error
// message recorded for it, or "" on success.
func (h *Handle) Error() string { return h.state.Error() }

// CallbackError returns the panic recovered from the completion
// callback, if any. It does not block; it returns nil if the callback
// has not run yet.
func (h *Handle) CallbackError() error { return h.state.CallbackError() }

// CallbackInvoked reports whether the completion callback has already
// run.
func (h *Handle) CallbackInvoked() bool { return h.state.CallbackInvoked() }

// unwrap returns the underlying [State]; [Unwrap] exposes it to the
// engine package, which imports request and drives it to completion.
func (h *Handle) unwrap() *State { return h.state }

// Unwrap returns the underlying [State] for the engine to drive. It is
// exported only because the engine package cannot see unexported
// identifiers across the package boundary; ordinary callers have no
// use for it and should treat it as engine-internal plumbing.
func Unwrap(h *Handle) *State { return h.unwrap() }

// NewHandle wraps a [State] freshly built by a [Builder] into the
// [Handle] returned to the caller.
func NewHandle(s *State) *Handle { return &Handle{state: s} }
