package request

import (
	"errors"
	"testing"
	"time"
)

func TestStateMarkDoneBuildsResponse(t *testing.T) {
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, nil)
	s.WriteHeaderLine("HTTP/1.1 200 OK")
	s.WriteHeaderLine("Content-Type: text/plain")
	if _, err := s.WriteDownload([]byte("hello")); err != nil {
		t.Fatalf("WriteDownload: %v", err)
	}

	if !s.MarkDone("https://example.com/", 200) {
		t.Fatal("MarkDone returned false on a pending request")
	}

	if got := s.Status(); got != Done {
		t.Fatalf("Status() = %v, want Done", got)
	}

	h := NewHandle(s)
	resp, err := h.Take()
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if resp.HTTPCode != 200 {
		t.Errorf("HTTPCode = %d, want 200", resp.HTTPCode)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q, want %q", resp.Body, "hello")
	}
	if ct, _ := resp.Headers.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/plain")
	}

	if s.Status() != Empty {
		t.Errorf("Status() after Take = %v, want Empty", s.Status())
	}
	if _, err := h.Take(); !errors.Is(err, ErrResponseUnavailable) {
		t.Errorf("second Take err = %v, want ErrResponseUnavailable", err)
	}
}

func TestStateHeaderResetOnRedirect(t *testing.T) {
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, nil)
	s.WriteHeaderLine("HTTP/1.1 302 Found")
	s.WriteHeaderLine("Location: https://example.com/next")
	s.WriteHeaderLine("HTTP/1.1 200 OK")
	s.WriteHeaderLine("Content-Type: text/plain")

	s.MarkDone("https://example.com/next", 200)

	resp, err := NewHandle(s).Take()
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if _, ok := resp.Headers.Get("Location"); ok {
		t.Error("headers from the intermediate redirect response leaked into the final response")
	}
	if ct, _ := resp.Headers.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/plain")
	}
}

func TestStateCancelOnlyOnce(t *testing.T) {
	var cancelled int
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, nil)
	s.SetCancelFunc(func() { cancelled++ })

	if !s.Cancel() {
		t.Fatal("first Cancel should succeed")
	}
	if s.Cancel() {
		t.Fatal("second Cancel should report false, already terminal")
	}
	if cancelled != 1 {
		t.Errorf("cancelFn invoked %d times, want 1", cancelled)
	}
	if s.Status() != Cancelled {
		t.Errorf("Status() = %v, want Cancelled", s.Status())
	}
}

func TestStateMarkFailedSetsError(t *testing.T) {
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, nil)
	if !s.MarkFailed(Timeout, "response idle timeout") {
		t.Fatal("MarkFailed should succeed on a pending request")
	}
	if s.Status() != Timeout {
		t.Errorf("Status() = %v, want Timeout", s.Status())
	}
	if got := s.Error(); got != "response idle timeout" {
		t.Errorf("Error() = %q, want %q", got, "response idle timeout")
	}
}

func TestStateWaitForTimesOutWhilePending(t *testing.T) {
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, nil)
	start := time.Now()
	got := s.WaitFor(20 * time.Millisecond)
	if time.Since(start) > time.Second {
		t.Fatal("WaitFor blocked far longer than its deadline")
	}
	if got != Pending {
		t.Errorf("WaitFor timed out with status %v, want Pending", got)
	}
}

func TestStateCallbackPanicCaptured(t *testing.T) {
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, func(h *Handle) {
		panic(errors.New("boom"))
	})
	s.MarkDone("https://example.com/", 200)
	s.InvokeCallback()

	if got := s.WaitCallback(); got != Done {
		t.Fatalf("WaitCallback() = %v, want Done", got)
	}
	if err := s.CallbackError(); err == nil || err.Error() != "boom" {
		t.Errorf("CallbackError() = %v, want %q", err, "boom")
	}
}

func TestStateCallbackInvokedExactlyOnce(t *testing.T) {
	var calls int
	s := NewState(Config{URL: "https://example.com"}, nil, nil, nil, func(h *Handle) {
		calls++
	})
	s.MarkDone("https://example.com/", 200)
	s.InvokeCallback()
	s.InvokeCallback()

	if calls != 1 {
		t.Errorf("callback invoked %d times, want 1", calls)
	}
}

func TestStateCheckIdleCoercesZeroToOneSecond(t *testing.T) {
	s := NewState(Config{URL: "https://example.com", ResponseTimeout: 0}, nil, nil, nil, nil)
	if s.CheckIdle(time.Now().Add(500 * time.Millisecond)) {
		t.Error("CheckIdle fired before the coerced 1-second minimum elapsed")
	}
	if !s.CheckIdle(time.Now().Add(2 * time.Second)) {
		t.Error("CheckIdle did not fire after the coerced 1-second minimum elapsed")
	}
}

func TestStateReadUploadRecoversPanic(t *testing.T) {
	s := NewState(Config{URL: "https://example.com"}, panicUploader{}, nil, nil, nil)
	if _, err := s.ReadUpload(make([]byte, 4)); err == nil {
		t.Error("ReadUpload should surface the uploader's panic as an error")
	}
}

type panicUploader struct{}

func (panicUploader) Size() int64                  { return 0 }
func (panicUploader) Read(dst []byte) (int, error) { panic("upload source gone") }
