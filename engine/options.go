package engine

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/arlobridge/flightreq/telemetry"
	"github.com/arlobridge/flightreq/throttle"
)

type options struct {
	transport Transport
	doer      HTTPDoer
	tracer    trace.Tracer
	logger    *slog.Logger
	limiter   *throttle.Limiter
}

// Option configures an [Engine] via [New].
type Option func(*options)

// WithTransport overrides the default net/http-backed transport
// entirely, typically for tests driving Engine's phase logic against
// a fake.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithHTTPDoer overrides the default transport's per-request
// *http.Client construction with a single shared doer, used for every
// attempt regardless of that request's TLS/proxy/redirect settings.
// Tests use this to inject a stub that never touches the network.
func WithHTTPDoer(d HTTPDoer) Option {
	return func(o *options) { o.doer = d }
}

// WithTracer sets the OpenTelemetry tracer wrapping each attempt in a
// "flightreq.attempt" span. The default is a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithThrottle caps the rate at which phase 1 attaches newly queued
// requests to the transport.
func WithThrottle(l *throttle.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

func resolveOptions(optFns []Option) options {
	var opts options
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = telemetry.NoopTracer()
	}
	return opts
}
