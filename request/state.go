package request

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arlobridge/flightreq/throttle"
)

// Callback is invoked exactly once per request, from the engine
// goroutine, strictly after the request's final [Status] is set. A
// callback that panics has its panic recovered and stored; it is
// observable afterwards via [Handle.CallbackError].
type Callback func(*Handle)

// State is the shared object backing a submitted request: the
// configuration snapshot frozen by [Builder.Send], the three stream
// adapters, and every mutable field the engine mutates as the request
// progresses. All mutable fields are guarded by mu. done is closed
// exactly once, when status leaves Pending; callbackDone is closed
// exactly once, after the completion callback has run.
type State struct {
	mu sync.Mutex

	cfg        Config
	uploader   Uploader
	downloader Downloader
	progressor Progressor
	callback   Callback

	status          Status
	responseHeaders *Headers
	responseBody    []byte
	uploadedBytes   int64
	downloadedBytes int64
	lastActivity    time.Time
	progress        float64

	response        *Response
	errMsg          string
	callbackErr     error
	callbackInvoked bool

	traceID  string
	cancelFn func()
	limiter  *throttle.Limiter

	done         chan struct{}
	callbackDone chan struct{}
}

// NewState constructs a request in the Pending status. A nil uploader,
// downloader, or progressor is replaced with the corresponding default
// implementation.
func NewState(cfg Config, uploader Uploader, downloader Downloader, progressor Progressor, cb Callback) *State {
	s := &State{
		cfg:             cfg,
		responseHeaders: NewHeaders(),
		status:          Pending,
		lastActivity:    time.Now(),
		callback:        cb,
		done:            make(chan struct{}),
		callbackDone:    make(chan struct{}),
	}

	if uploader != nil {
		s.uploader = uploader
	} else {
		s.uploader = newDefaultUploader(s)
	}

	if downloader != nil {
		s.downloader = downloader
	} else {
		s.downloader = newDefaultDownloader(s)
	}

	if progressor != nil {
		s.progressor = progressor
	} else {
		s.progressor = newDefaultProgressor()
	}

	return s
}

// Config returns the frozen configuration snapshot.
func (s *State) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Uploader, Downloader, and Progressor return the three stream
// adapters currently owned by the state. The engine reads these once
// at attach time; callers should not call them directly.
func (s *State) Uploader() Uploader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploader
}

func (s *State) Downloader() Downloader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloader
}

func (s *State) Progressor() Progressor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressor
}

// TraceID returns the correlation ID stamped on this state at attach
// time, or "" before attachment.
func (s *State) TraceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceID
}

// SetTraceID is called by the engine at attach time.
func (s *State) SetTraceID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceID = id
}

// SetLimiter installs a per-request throttle consulted by the engine's
// attach phase before its own engine-wide limiter, set via
// [Builder.MaxInFlight].
func (s *State) SetLimiter(l *throttle.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = l
}

// Limiter returns the per-request throttle installed by
// [Builder.MaxInFlight], or nil if none was set.
func (s *State) Limiter() *throttle.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limiter
}

// SetCancelFunc installs the function the engine uses to abort the
// in-flight transfer. It is called by [State.Cancel] and is safe to
// call multiple times (idempotent cancellation of the underlying
// context).
func (s *State) SetCancelFunc(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelFn = fn
}

// Status returns the request's current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsDone reports whether status is Done.
func (s *State) IsDone() bool { return s.Status() == Done }

// IsPending reports whether status is Pending.
func (s *State) IsPending() bool { return s.Status() == Pending }

// Progress returns the last progress fraction recorded, in [0,1].
func (s *State) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Cancel transitions a Pending request to Cancelled and returns
// whether the transition happened. It is non-blocking: it flips the
// status and, if the request has been attached to the transport,
// asks the engine to abort the in-flight transfer, but does not wait
// for that abort to complete.
func (s *State) Cancel() bool {
	transitioned := s.transitionTerminal(Cancelled, "operation cancelled")
	if transitioned {
		s.mu.Lock()
		fn := s.cancelFn
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	return transitioned
}

// transitionTerminal moves status from Pending to status if and only
// if it is still Pending, closing done exactly once on success.
func (s *State) transitionTerminal(status Status, errMsg string) bool {
	s.mu.Lock()
	if s.status != Pending {
		s.mu.Unlock()
		return false
	}
	s.status = status
	s.errMsg = errMsg
	s.mu.Unlock()
	close(s.done)
	return true
}

// MarkFailed is called by the engine when the transport reports a
// terminal error for this request. status must be one of Failed,
// Timeout, or Cancelled (Cancelled also covers stream-adapter aborts
// and read/write/callback errors).
func (s *State) MarkFailed(status Status, errMsg string) bool {
	return s.transitionTerminal(status, errMsg)
}

// MarkDone is called by the engine on successful transport completion.
// It builds the Response from whatever headers/body were accumulated
// and moves the three stream adapters into it.
func (s *State) MarkDone(effectiveURL string, httpCode int) bool {
	s.mu.Lock()
	if s.status != Pending {
		s.mu.Unlock()
		return false
	}

	s.response = &Response{
		EffectiveURL: effectiveURL,
		HTTPCode:     httpCode,
		Headers:      s.responseHeaders,
		Body:         s.responseBody,
		Uploader:     s.uploader,
		Downloader:   s.downloader,
		Progressor:   s.progressor,
	}
	s.status = Done
	s.progress = 1
	s.errMsg = ""
	s.mu.Unlock()

	close(s.done)
	return true
}

// CheckIdle reports whether now minus the time of the last trampoline
// invocation meets or exceeds the configured response timeout (a
// zero timeout is treated as 1 second).
func (s *State) CheckIdle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Pending {
		return false
	}
	timeout := s.cfg.ResponseTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return now.Sub(s.lastActivity) >= timeout
}

func (s *State) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// ReadUpload is the read trampoline: it asks the uploader for up to
// len(dst) bytes. A panic from a user-supplied uploader is recovered
// and returned as an error, which the engine surfaces as an aborted
// read (CURL_READFUNC_ABORT's Go analogue).
func (s *State) ReadUpload(dst []byte) (n int, err error) {
	s.touchActivity()

	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read aborted: %v", r)
		}
	}()

	n, err = s.Uploader().Read(dst)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.uploadedBytes += int64(n)
	s.mu.Unlock()

	return n, nil
}

// WriteDownload is the write trampoline: it feeds src to the
// downloader. A panic or error is surfaced to the caller, which the
// engine treats as a write failure.
func (s *State) WriteDownload(src []byte) (n int, err error) {
	s.touchActivity()

	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("write aborted: %v", r)
		}
	}()

	n, err = s.Downloader().Write(src)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.downloadedBytes += int64(n)
	s.mu.Unlock()

	return n, nil
}

// UpdateProgress is the progress trampoline: it forwards cumulative
// byte counts to the progressor and stores the clamped [0,1] result.
// A non-nil return cancels the request.
func (s *State) UpdateProgress(downloadedNow, downloadedTotal, uploadedNow, uploadedTotal int64) (err error) {
	s.touchActivity()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("progress aborted: %v", r)
		}
	}()

	frac, perr := s.Progressor().Update(downloadedNow, downloadedTotal, uploadedNow, uploadedTotal)
	if perr != nil {
		return perr
	}

	s.mu.Lock()
	s.progress = clampFraction(frac)
	s.mu.Unlock()

	return nil
}

// WriteHeaderLine is the header trampoline: the transport delivers one
// header line at a time, including the status line. A line starting
// with "HTTP/" resets the accumulated headers, discarding headers from
// intermediate redirect responses.
func (s *State) WriteHeaderLine(line string) {
	s.touchActivity()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Pending {
		return
	}

	if strings.HasPrefix(line, "HTTP/") {
		s.responseHeaders.Reset()
		return
	}

	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return
	}

	key := line[:idx]
	if key == "" {
		return
	}

	value := strings.TrimLeft(line[idx+1:], "\t ")
	value = strings.TrimRight(value, "\r\n\t ")
	s.responseHeaders.Set(key, value)
}

// InvokeCallback runs the user callback, if any, exactly once. It must
// be called after status has left Pending.
func (s *State) InvokeCallback() {
	s.mu.Lock()
	if s.callbackInvoked {
		s.mu.Unlock()
		return
	}
	cb := s.callback
	s.mu.Unlock()

	var cbErr error
	if cb != nil {
		cbErr = invokeCallbackSafely(cb, s)
	}

	s.mu.Lock()
	s.callbackInvoked = true
	s.callbackErr = cbErr
	s.mu.Unlock()

	close(s.callbackDone)
}

func invokeCallbackSafely(cb Callback, s *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	cb(&Handle{state: s})
	return nil
}

// Wait blocks until status leaves Pending and returns it.
func (s *State) Wait() Status {
	<-s.done
	return s.Status()
}

// WaitFor blocks until status leaves Pending or d elapses.
func (s *State) WaitFor(d time.Duration) Status {
	return s.WaitUntil(time.Now().Add(d))
}

// WaitUntil blocks until status leaves Pending or deadline passes.
func (s *State) WaitUntil(deadline time.Time) Status {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
	}
	return s.Status()
}

// WaitCallback blocks until status has left Pending and the
// completion callback (if any) has finished running.
func (s *State) WaitCallback() Status {
	<-s.done
	<-s.callbackDone
	return s.Status()
}

// WaitCallbackFor blocks until the callback has run or d elapses.
func (s *State) WaitCallbackFor(d time.Duration) Status {
	return s.WaitCallbackUntil(time.Now().Add(d))
}

// WaitCallbackUntil blocks until the callback has run or deadline
// passes.
func (s *State) WaitCallbackUntil(deadline time.Time) Status {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		return s.Status()
	}

	select {
	case <-s.callbackDone:
	case <-timer.C:
	}

	return s.Status()
}

// Take blocks until status leaves Pending, then, if it is Done,
// transitions to Empty and returns the response. Any other terminal
// status returns [ErrResponseUnavailable].
func (s *State) Take() (*Response, error) {
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Done {
		return nil, &Error{Err: ErrResponseUnavailable, Detail: s.status.String()}
	}

	resp := s.response
	s.response = nil
	s.status = Empty

	return resp, nil
}

// Error blocks until status leaves Pending and returns the stored
// error message, if any.
func (s *State) Error() string {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// CallbackError returns whatever the completion callback's panic was
// recovered into, or nil if the callback has not run yet or did not
// panic. Unlike Error, it does not block.
func (s *State) CallbackError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbackErr
}

// CallbackInvoked reports whether InvokeCallback has already run.
func (s *State) CallbackInvoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbackInvoked
}
