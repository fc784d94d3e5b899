package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arlobridge/flightreq/request"
	"github.com/arlobridge/flightreq/throttle"
)

// fakeTransport is a bare bones Transport double used to exercise
// Engine's three-phase tick without any real network I/O.
type fakeTransport struct {
	mu            sync.Mutex
	added         []*request.State
	messages      []Message
	notify        chan struct{}
	cancelledIdle []*request.State
	addErr        error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notify: make(chan struct{})}
}

func (f *fakeTransport) AddEasy(s *request.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, s)
	return nil
}

func (f *fakeTransport) RemoveEasy(s *request.State) {}

func (f *fakeTransport) CancelIdle(s *request.State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledIdle = append(f.cancelledIdle, s)
	return true
}

func (f *fakeTransport) Perform() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

func (f *fakeTransport) DrainMessage() (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return Message{}, false
	}
	m := f.messages[0]
	f.messages = f.messages[1:]
	return m, true
}

func (f *fakeTransport) HasMessage() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages) > 0
}

func (f *fakeTransport) NotifyChannel() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notify
}

func (f *fakeTransport) push(m Message) {
	f.mu.Lock()
	f.messages = append(f.messages, m)
	old := f.notify
	f.notify = make(chan struct{})
	f.mu.Unlock()
	close(old)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	return New(WithTransport(ft)), ft
}

func TestEnginePerformAttachesQueuedRequests(t *testing.T) {
	e, ft := newTestEngine(t)

	h, err := request.NewBuilder(request.GET, "https://example.com").Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Submit(h)

	e.Perform()

	ft.mu.Lock()
	added := len(ft.added)
	ft.mu.Unlock()
	if added != 1 {
		t.Fatalf("transport saw %d attaches, want 1", added)
	}

	pending := e.GetAllPendingRequests()
	if len(pending) != 1 {
		t.Fatalf("GetAllPendingRequests() = %d, want 1", len(pending))
	}
}

func TestEnginePerformSkipsPreAttachCancel(t *testing.T) {
	e, ft := newTestEngine(t)

	var called bool
	h, err := request.NewBuilder(request.GET, "https://example.com").
		OnComplete(func(*request.Handle) { called = true }).
		Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.Cancel()
	e.Submit(h)

	e.Perform()

	ft.mu.Lock()
	added := len(ft.added)
	ft.mu.Unlock()
	if added != 0 {
		t.Fatalf("a cancelled, never-attached request should not reach the transport, got %d", added)
	}

	if status := h.WaitCallbackFor(time.Second); status != request.Cancelled {
		t.Fatalf("status = %v, want Cancelled", status)
	}
	if !called {
		t.Error("a pre-attach-cancelled request should still have its callback invoked")
	}
	if !h.CallbackInvoked() {
		t.Error("CallbackInvoked() = false, want true")
	}
}

func TestEnginePerformAttachFailureInvokesCallback(t *testing.T) {
	e, ft := newTestEngine(t)
	ft.addErr = errors.New("boom")

	var called bool
	h, err := request.NewBuilder(request.GET, "https://example.com").
		OnComplete(func(*request.Handle) { called = true }).
		Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Submit(h)

	e.Perform()

	if status := h.WaitCallbackFor(time.Second); status != request.Failed {
		t.Fatalf("status = %v, want Failed", status)
	}
	if !called {
		t.Error("an attach-failure request should still have its callback invoked")
	}
	if !h.CallbackInvoked() {
		t.Error("CallbackInvoked() = false, want true")
	}
}

func TestEnginePerformHarvestsCompletionAndInvokesCallback(t *testing.T) {
	e, ft := newTestEngine(t)

	var called bool
	h, err := request.NewBuilder(request.GET, "https://example.com").
		OnComplete(func(*request.Handle) { called = true }).
		Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Submit(h)
	e.Perform()

	s := request.Unwrap(h)
	s.MarkDone("https://example.com/", 200)
	ft.push(Message{State: s, StatusCode: 200, EffectiveURL: "https://example.com/"})

	e.Perform()

	if !called {
		t.Error("completion callback was not invoked after harvest")
	}
	if len(e.GetAllPendingRequests()) != 0 {
		t.Error("a harvested request should no longer be pending")
	}
}

func TestEngineCheckIdleCancelsStalledRequest(t *testing.T) {
	e, ft := newTestEngine(t)

	s := request.NewState(request.Config{URL: "https://example.com", ResponseTimeout: 10 * time.Millisecond}, nil, nil, nil, nil)
	e.Submit(request.NewHandle(s))
	e.Perform()

	time.Sleep(30 * time.Millisecond)
	e.Perform()

	ft.mu.Lock()
	n := len(ft.cancelledIdle)
	ft.mu.Unlock()
	if n != 1 {
		t.Fatalf("CancelIdle called %d times, want 1", n)
	}
}

func TestEngineCancelAllPendingRequests(t *testing.T) {
	e, _ := newTestEngine(t)

	h1, _ := request.NewBuilder(request.GET, "https://example.com/a").Send()
	h2, _ := request.NewBuilder(request.GET, "https://example.com/b").Send()
	e.Submit(h1)
	e.Submit(h2)

	n := e.CancelAllPendingRequests()
	if n != 2 {
		t.Fatalf("CancelAllPendingRequests() = %d, want 2", n)
	}
	if h1.Status() != request.Cancelled || h2.Status() != request.Cancelled {
		t.Errorf("statuses = %v, %v, want both Cancelled", h1.Status(), h2.Status())
	}
}

func TestEngineWaitActivityWakesOnSubmit(t *testing.T) {
	e, _ := newTestEngine(t)

	done := make(chan struct{})
	go func() {
		e.WaitActivity(time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	h, _ := request.NewBuilder(request.GET, "https://example.com").Send()
	e.Submit(h)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitActivity did not wake after Submit")
	}
}

func TestEngineWaitActivityTimesOutWhenIdle(t *testing.T) {
	e, _ := newTestEngine(t)
	start := time.Now()
	e.WaitActivity(20 * time.Millisecond)
	if time.Since(start) > time.Second {
		t.Fatal("WaitActivity blocked far longer than its deadline")
	}
}

func TestEngineWaitActivityReturnsImmediatelyWhenQueueAlreadyHasWork(t *testing.T) {
	e, _ := newTestEngine(t)

	h, _ := request.NewBuilder(request.GET, "https://example.com").Send()
	e.Submit(h)

	start := time.Now()
	e.WaitActivity(time.Second)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("WaitActivity took %v to notice work already queued before the call", elapsed)
	}
}

func TestEngineWaitActivityReturnsImmediatelyWhenTransportAlreadyHasMessage(t *testing.T) {
	e, ft := newTestEngine(t)

	s := request.Unwrap(mustSend(t, request.NewBuilder(request.GET, "https://example.com")))
	s.MarkDone("https://example.com/", 200)
	ft.push(Message{State: s, StatusCode: 200, EffectiveURL: "https://example.com/"})

	start := time.Now()
	e.WaitActivity(time.Second)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("WaitActivity took %v to notice a completion already queued before the call", elapsed)
	}
}

func mustSend(t *testing.T, b *request.Builder) *request.Handle {
	t.Helper()
	h, err := b.Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	return h
}

func TestEngineMaxInFlightThrottlesPerRequest(t *testing.T) {
	e, ft := newTestEngine(t)

	limiter, err := throttle.NewLimiter(1, 1)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	limiter.Allow() // consume the single burst token up front

	h, err := request.NewBuilder(request.GET, "https://example.com").
		MaxInFlight(limiter).
		Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Submit(h)

	e.Perform()

	ft.mu.Lock()
	added := len(ft.added)
	ft.mu.Unlock()
	if added != 0 {
		t.Fatalf("a request whose per-request limiter denies Allow should not reach the transport, got %d attaches", added)
	}
	if h.Status() != request.Pending {
		t.Fatalf("status = %v, want Pending (requeued, not failed)", h.Status())
	}
}
