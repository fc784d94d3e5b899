package flightreq

import (
	"time"

	"github.com/arlobridge/flightreq/engine"
	"github.com/arlobridge/flightreq/request"
)

// Get, Post, Put, Patch, Delete, Head, and Options start a request
// builder for the corresponding HTTP method. Chain further
// configuration on the returned [request.Builder], then pass it to
// [Send].
func Get(url string) *request.Builder     { return request.NewBuilder(request.GET, url) }
func Post(url string) *request.Builder    { return request.NewBuilder(request.POST, url) }
func Put(url string) *request.Builder     { return request.NewBuilder(request.PUT, url) }
func Patch(url string) *request.Builder   { return request.NewBuilder(request.PATCH, url) }
func Delete(url string) *request.Builder  { return request.NewBuilder(request.DELETE, url) }
func Head(url string) *request.Builder    { return request.NewBuilder(request.HEAD, url) }
func Options(url string) *request.Builder { return request.NewBuilder(request.OPTIONS, url) }

// Send finalizes b and submits it to the default engine. A validation
// failure returns an error directly; the request is never queued.
func Send(b *request.Builder) (*request.Handle, error) {
	h, err := b.Send()
	if err != nil {
		return nil, err
	}
	engine.Submit(h)
	return h, nil
}

// Perform runs one tick of the default engine and returns how many
// requests are still pending afterward.
func Perform() int { return engine.Perform() }

// WaitActivity blocks the calling goroutine until the default engine
// has new work to do, or d elapses.
func WaitActivity(d time.Duration) { engine.WaitActivity(d) }

// CancelAllPendingRequests cancels every request currently pending on
// the default engine.
func CancelAllPendingRequests() int { return engine.CancelAllPendingRequests() }

// GetAllPendingRequests returns a handle for every request currently
// pending on the default engine.
func GetAllPendingRequests() []*request.Handle { return engine.GetAllPendingRequests() }

// StartPerformer starts a background goroutine driving the default
// engine's Perform/WaitActivity loop until Stop is called.
func StartPerformer() *engine.Performer { return engine.NewPerformer(engine.Default()) }
