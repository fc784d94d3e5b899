// Package throttle rate-limits outbound attempts using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// Unlike an [http.RoundTripper]-style throttle that blocks the calling
// goroutine until a token is available, [Limiter] is polled with
// [Limiter.Allow]: the engine goroutine must never block inside its
// tick, so a request that would exceed the configured rate is simply
// put back in the submission queue for a later tick instead of being
// delayed in place.
package throttle
