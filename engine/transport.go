package engine

import (
	"net/http"

	"github.com/arlobridge/flightreq/request"
)

// HTTPDoer is the narrow collaborator the transport calls to actually
// execute one HTTP round trip. http.DefaultClient satisfies it; tests
// inject a fake to avoid real network I/O, and a throttled or
// instrumented *http.Client satisfies it just as well.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Message is what the transport reports back once an attached
// request finishes, successfully or not. By the time a Message is
// produced, the transport has already called MarkDone or MarkFailed
// on State; Message exists so the engine's phase 3 can log the
// outcome and know which active-registry entry to retire.
type Message struct {
	State        *request.State
	Err          error
	StatusCode   int
	EffectiveURL string
}

// Transport is the capability surface the engine drives: attach a
// request, let it run, report what finished. [httpTransport] is the
// only implementation shipped, backed by net/http; tests may supply
// their own for unit-testing Engine's phase logic in isolation.
type Transport interface {
	// AddEasy attaches s and starts driving it toward completion. It
	// returns an error only if s could not be prepared for attachment
	// at all (e.g. its URL fails to parse); such an error never
	// produces a Message, since the request was never actually
	// attached.
	AddEasy(s *request.State) error

	// RemoveEasy detaches s, releasing whatever transport-side
	// resources AddEasy allocated for it. Called once per state that
	// was ever added, after its Message has been drained.
	RemoveEasy(s *request.State)

	// CancelIdle aborts s's in-flight attempt because
	// [request.State.CheckIdle] reported it stalled, distinguishing
	// this from an explicit cancellation so the eventual Message
	// classifies the outcome as a Timeout and not a Cancelled. It
	// reports whether s was found attached.
	CancelIdle(s *request.State) bool

	// Perform reports how many attached requests are still running.
	Perform() int

	// DrainMessage performs a non-blocking receive of the next
	// completion, if any are queued.
	DrainMessage() (Message, bool)

	// HasMessage reports whether DrainMessage would currently return a
	// completion, without consuming it. WaitActivity uses this to avoid
	// blocking on NotifyChannel when a completion already arrived
	// before WaitActivity was called.
	HasMessage() bool

	// NotifyChannel returns a channel that closes the next time the
	// transport has new activity to report (a completion or a newly
	// attached handle), for WaitActivity to select on.
	NotifyChannel() <-chan struct{}
}
