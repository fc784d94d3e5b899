package engine

import (
	"sync"
	"time"

	"github.com/arlobridge/flightreq/request"
)

// Engine owns the submission queue and the transport, and drives
// requests through the three-phase tick described in doc.go. The
// zero value is not usable; construct one with [New].
type Engine struct {
	mu        sync.Mutex
	queue     *request.Queue
	transport Transport
	active    map[*request.State]struct{}
	limiter   limiter
	logger    logger
}

// limiter and logger are the narrow interfaces Engine actually calls.
// A nil *throttle.Limiter stored in limiter still admits every request,
// since its Allow handles a nil receiver; logger is always set, as New
// falls back to slog.Default().
type limiter interface{ Allow() bool }
type logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// New constructs an Engine. With no options, it uses a no-op tracer,
// the default slog logger, no rate limiting, and a net/http-backed
// transport that builds a dedicated *http.Client per attempt from that
// request's own configuration.
func New(optFns ...Option) *Engine {
	opts := resolveOptions(optFns)

	transport := opts.transport
	if transport == nil {
		transport = newHTTPTransport(opts.doer, opts.tracer, opts.logger)
	}

	return &Engine{
		queue:     request.NewQueue(),
		transport: transport,
		active:    make(map[*request.State]struct{}),
		limiter:   opts.limiter,
		logger:    opts.logger,
	}
}

// Submit enqueues a handle built by [request.Builder.Send] for
// attachment on the next [Engine.Perform] tick.
func (e *Engine) Submit(h *request.Handle) {
	e.queue.Enqueue(request.Unwrap(h))
}

// Perform runs one tick: drain the submission queue and attach
// whatever the throttle admits, let the transport report idle
// requests and completions, then invoke every finished request's
// callback. It returns the number of requests still pending
// (queued or attached) after the tick.
func (e *Engine) Perform() int {
	e.attachQueued()
	e.checkIdle()
	e.harvest()

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active) + e.queue.Len()
}

func (e *Engine) attachQueued() {
	var requeue []*request.State

	for {
		s, ok := e.queue.TryDequeue()
		if !ok {
			break
		}

		if !s.IsPending() {
			// Cancelled (or otherwise resolved) before ever being
			// attached; it never enters the active registry, but it
			// still owes a callback.
			s.InvokeCallback()
			continue
		}

		if l := s.Limiter(); l != nil && !l.Allow() {
			requeue = append(requeue, s)
			e.logger.Debug("flightreq: throttled by per-request limiter, requeuing", "url", s.Config().URL)
			continue
		}

		if e.limiter != nil && !e.limiter.Allow() {
			requeue = append(requeue, s)
			e.logger.Debug("flightreq: throttled, requeuing", "url", s.Config().URL)
			continue
		}

		if err := e.transport.AddEasy(s); err != nil {
			s.MarkFailed(request.Failed, err.Error())
			e.logger.Error("flightreq: attach failed", "url", s.Config().URL, "error", err)
			s.InvokeCallback()
			continue
		}

		e.mu.Lock()
		e.active[s] = struct{}{}
		e.mu.Unlock()
	}

	for _, s := range requeue {
		e.queue.Enqueue(s)
	}
}

func (e *Engine) checkIdle() {
	now := time.Now()

	e.mu.Lock()
	snapshot := make([]*request.State, 0, len(e.active))
	for s := range e.active {
		snapshot = append(snapshot, s)
	}
	e.mu.Unlock()

	for _, s := range snapshot {
		if s.CheckIdle(now) {
			e.transport.CancelIdle(s)
		}
	}
}

func (e *Engine) harvest() {
	for {
		msg, ok := e.transport.DrainMessage()
		if !ok {
			break
		}

		e.mu.Lock()
		delete(e.active, msg.State)
		e.mu.Unlock()

		e.transport.RemoveEasy(msg.State)
		msg.State.InvokeCallback()
	}
}

// WaitActivity blocks until the submission queue receives new work or
// the transport reports new activity, or until d elapses, whichever
// comes first. If either already has unconsumed activity at the time
// of the call, it returns immediately instead of waiting for the next
// notification, so activity that arrived between ticks without an
// intervening drain is never missed for a full d. A caller driving
// Perform in a loop calls this between ticks instead of busy-polling.
func (e *Engine) WaitActivity(d time.Duration) {
	if d <= 0 {
		return
	}

	if !e.queue.Empty() || e.transport.HasMessage() {
		return
	}

	select {
	case <-e.queue.NotifyChannel():
	case <-e.transport.NotifyChannel():
	case <-time.After(d):
	}
}

// CancelAllPendingRequests cancels every request that is still
// Pending, whether queued or attached, and reports how many were
// cancelled.
func (e *Engine) CancelAllPendingRequests() int {
	states := e.snapshotAll()

	n := 0
	for _, s := range states {
		if s.Cancel() {
			n++
		}
	}
	return n
}

// GetAllPendingRequests returns a handle for every request currently
// Pending, whether queued or attached.
func (e *Engine) GetAllPendingRequests() []*request.Handle {
	states := e.snapshotAll()

	handles := make([]*request.Handle, 0, len(states))
	for _, s := range states {
		if s.IsPending() {
			handles = append(handles, request.NewHandle(s))
		}
	}
	return handles
}

func (e *Engine) snapshotAll() []*request.State {
	e.mu.Lock()
	states := make([]*request.State, 0, len(e.active))
	for s := range e.active {
		states = append(states, s)
	}
	e.mu.Unlock()

	e.queue.CopyTo(&states)
	return states
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide engine used by the package-level
// convenience functions, constructing it with default options on
// first use.
func Default() *Engine {
	defaultOnce.Do(func() { defaultEngine = New() })
	return defaultEngine
}

// Submit enqueues h on the default engine.
func Submit(h *request.Handle) { Default().Submit(h) }

// Perform runs one tick of the default engine.
func Perform() int { return Default().Perform() }

// WaitActivity blocks on the default engine.
func WaitActivity(d time.Duration) { Default().WaitActivity(d) }

// CancelAllPendingRequests cancels every pending request on the
// default engine.
func CancelAllPendingRequests() int { return Default().CancelAllPendingRequests() }

// GetAllPendingRequests returns a handle for every pending request on
// the default engine.
func GetAllPendingRequests() []*request.Handle { return Default().GetAllPendingRequests() }
