package engine

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/arlobridge/flightreq/request"
)

// httpTransport is the net/http-backed [Transport]: the Go analogue of
// curl's multi-handle. AddEasy starts one goroutine per attached
// request; that goroutine is the only thing that ever touches the
// request's net/http.Request/Response, so httpTransport itself only
// needs to track bookkeeping (which states are attached, and what they
// reported) under its own mutex.
type httpTransport struct {
	mu       sync.Mutex
	handles  map[*request.State]*easyHandle
	messages chan Message
	notify   chan struct{}

	doer   HTTPDoer
	tracer trace.Tracer
	logger *slog.Logger
}

func newHTTPTransport(doer HTTPDoer, tracer trace.Tracer, logger *slog.Logger) *httpTransport {
	return &httpTransport{
		handles:  make(map[*request.State]*easyHandle),
		messages: make(chan Message, 64),
		notify:   make(chan struct{}),
		doer:     doer,
		tracer:   tracer,
		logger:   logger,
	}
}

func (t *httpTransport) AddEasy(s *request.State) error {
	eh, err := newEasyHandle(s)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.handles[s] = eh
	t.mu.Unlock()

	go eh.run(t)

	t.wake()
	return nil
}

func (t *httpTransport) RemoveEasy(s *request.State) {
	t.mu.Lock()
	delete(t.handles, s)
	t.mu.Unlock()
}

func (t *httpTransport) CancelIdle(s *request.State) bool {
	t.mu.Lock()
	eh, ok := t.handles[s]
	t.mu.Unlock()

	if !ok || eh.cancel == nil {
		return false
	}

	eh.cancel(errIdleTimeout)
	return true
}

func (t *httpTransport) Perform() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

func (t *httpTransport) DrainMessage() (Message, bool) {
	select {
	case msg := <-t.messages:
		return msg, true
	default:
		return Message{}, false
	}
}

func (t *httpTransport) HasMessage() bool {
	return len(t.messages) > 0
}

func (t *httpTransport) NotifyChannel() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notify
}

// complete is called by an easyHandle's run goroutine once it reaches
// a terminal outcome. By this point MarkDone/MarkFailed has already
// been called on msg.State; complete only queues the Message for
// phase 3 to harvest and wakes anyone blocked in WaitActivity.
func (t *httpTransport) complete(msg Message) {
	if t.logger != nil {
		if msg.Err != nil {
			t.logger.Debug("flightreq: attempt finished with error", "url", msg.State.Config().URL, "error", msg.Err)
		} else {
			t.logger.Debug("flightreq: attempt finished", "url", msg.EffectiveURL, "status", msg.StatusCode)
		}
	}

	t.messages <- msg
	t.wake()
}

func (t *httpTransport) wake() {
	t.mu.Lock()
	old := t.notify
	t.notify = make(chan struct{})
	t.mu.Unlock()
	close(old)
}
