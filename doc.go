// Package flightreq is an asynchronous HTTP client: requests are
// built and submitted from any goroutine, a single background engine
// drives them concurrently to completion, and results are collected
// either synchronously (blocking on the returned handle) or
// asynchronously (a completion callback).
//
// # Usage
//
//	h, err := flightreq.Send(flightreq.Get("https://example.com").Header("Accept", "application/json"))
//	if err != nil {
//		// the request was never accepted — a validation failure
//	}
//
//	go flightreq.Perform()
//	for h.IsPending() {
//		flightreq.WaitActivity(time.Second)
//		flightreq.Perform()
//	}
//
//	resp, err := h.Take()
//
// Most programs instead run a [engine.Performer] in the background
// (via [StartPerformer]) so they never have to call Perform/
// WaitActivity themselves:
//
//	p := flightreq.StartPerformer()
//	defer p.Stop()
//
//	h, _ := flightreq.Send(flightreq.Get("https://example.com"))
//	resp, err := h.Take() // blocks until the performer finishes it
package flightreq
