// Package engine drives submitted requests to completion. A single
// [Engine] owns a [request.Queue] and a [Transport]; repeatedly
// calling [Engine.Perform] runs one tick of a three-phase loop:
// drain the submission queue and attach new requests to the
// transport, let the transport make progress and check idle
// timeouts, then harvest whatever finished and invoke completion
// callbacks. [Engine.WaitActivity] blocks until there is more work to
// do, so a caller can drive the loop without busy-polling.
//
// [Default] returns the process-wide engine used by the package-level
// convenience functions; most callers never construct their own.
package engine
