package request

import (
	"time"

	"github.com/arlobridge/flightreq/throttle"
	"github.com/arlobridge/flightreq/validate"
)

// defaultConnectTimeout and defaultResponseTimeout give those two
// timeout knobs a conservative non-zero default. RequestTimeout has no
// such default: zero means "no overall limit", and that is the
// correct default for a total-request bound.
const (
	defaultConnectTimeout  = 10 * time.Second
	defaultResponseTimeout = 30 * time.Second
	defaultRedirections    = 30
)

// Builder accumulates a request's configuration through a fluent
// chain, then freezes it into a [Handle] on [Builder.Send]. A Builder
// is not safe for concurrent use; build one request, send it, and
// discard it.
type Builder struct {
	cfg        Config
	uploader   Uploader
	downloader Downloader
	progressor Progressor
	callback   Callback
	limiter    *throttle.Limiter
}

// NewBuilder starts a request for method against url. TLS verification
// defaults on; disabling verification is never the default.
func NewBuilder(method Method, url string) *Builder {
	return &Builder{
		cfg: Config{
			URL:             url,
			Method:          method,
			Headers:         NewHeaders(),
			ConnectTimeout:  defaultConnectTimeout,
			ResponseTimeout: defaultResponseTimeout,
			Redirections:    defaultRedirections,
			TLSVerify:       true,
		},
	}
}

// Header sets a request header, overwriting any prior value for key.
func (b *Builder) Header(key, value string) *Builder {
	b.cfg.Headers.Set(key, value)
	return b
}

// Query appends a query parameter. Repeated keys are all kept, in
// insertion order.
func (b *Builder) Query(key, value string) *Builder {
	b.cfg.QueryParams.Add(key, value)
	return b
}

// Body sets the request body sent by the default uploader. Calling
// Uploader after Body discards this in favor of a custom adapter.
func (b *Builder) Body(body []byte) *Builder {
	b.cfg.Body = body
	return b
}

// ConnectTimeout bounds how long the transport may take to establish
// the connection.
func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	b.cfg.ConnectTimeout = d
	return b
}

// RequestTimeout bounds the total wall-clock time for the whole
// request, including redirects. Zero means no limit.
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.cfg.RequestTimeout = d
	return b
}

// ResponseTimeout bounds how long the request may go without any
// trampoline activity (read, write, progress, or header line) before
// the engine marks it Timeout. A zero value is treated as 1 second at
// check time.
func (b *Builder) ResponseTimeout(d time.Duration) *Builder {
	b.cfg.ResponseTimeout = d
	return b
}

// Redirections caps how many redirects the transport will follow.
func (b *Builder) Redirections(n int) *Builder {
	b.cfg.Redirections = n
	return b
}

// TLSVerify toggles certificate verification. Disabling it is for
// local testing against self-signed endpoints; it is never the
// default.
func (b *Builder) TLSVerify(verify bool) *Builder {
	b.cfg.TLSVerify = verify
	return b
}

// TLSCAPath points the transport at a PEM file of trusted CA
// certificates, in place of the system root pool. The path is read as
// a single file; a directory is not searched.
func (b *Builder) TLSCAPath(path string) *Builder {
	b.cfg.TLSCAPath = path
	return b
}

// TLSCABundle supplies trusted CA certificates inline, in place of the
// system root pool.
func (b *Builder) TLSCABundle(pemBundle []byte) *Builder {
	b.cfg.TLSCABundle = pemBundle
	return b
}

// ProxyURL routes the request through an HTTP or HTTPS proxy.
func (b *Builder) ProxyURL(url, username, password string) *Builder {
	b.cfg.Proxy = &Proxy{URL: url, Username: username, Password: password}
	return b
}

// ClientCertPEM presents a PEM client certificate and key during the
// TLS handshake.
func (b *Builder) ClientCertPEM(certPEM, keyPEM []byte) *Builder {
	b.cfg.ClientCert = &ClientCert{CertPEM: certPEM, KeyPEM: keyPEM}
	return b
}

// ClientCertP12 records a PKCS#12 client certificate bundle. The
// default transport has no PKCS#12 decoder: a request carrying one
// fails when its client is built, and the bundle is never presented.
func (b *Builder) ClientCertP12(p12 []byte, password string) *Builder {
	b.cfg.ClientCert = &ClientCert{P12: p12, Password: password}
	return b
}

// PinnedPubKey rejects the TLS handshake unless the server's public
// key matches pin (curl's --pinnedpubkey format).
func (b *Builder) PinnedPubKey(pin string) *Builder {
	b.cfg.PinnedPubKey = pin
	return b
}

// ResumeOffset asks for the response body from byte offset instead
// of zero, via a Range request header. The upload body is always sent
// from its start.
func (b *Builder) ResumeOffset(offset int64) *Builder {
	b.cfg.ResumeOffset = offset
	return b
}

// Verbose sets the Verbose flag of the request's Config. The bundled
// transport does not read it and logs no wire-level detail.
func (b *Builder) Verbose(v bool) *Builder {
	b.cfg.Verbose = v
	return b
}

// Uploader installs a custom upload stream adapter, overriding the
// default in-memory body uploader.
func (b *Builder) Uploader(u Uploader) *Builder {
	b.uploader = u
	return b
}

// Downloader installs a custom download stream adapter, overriding
// the default in-memory body accumulator.
func (b *Builder) Downloader(d Downloader) *Builder {
	b.downloader = d
	return b
}

// Progressor installs a custom progress adapter, overriding the
// default combined-fraction calculation.
func (b *Builder) Progressor(p Progressor) *Builder {
	b.progressor = p
	return b
}

// OnComplete registers the callback the engine invokes exactly once,
// after the request reaches a terminal status.
func (b *Builder) OnComplete(cb Callback) *Builder {
	b.callback = cb
	return b
}

// MaxInFlight installs a per-request throttle the engine consults
// before its own engine-wide limiter, admitting this request to attach
// only when both allow it. A nil limiter (the default) leaves this
// request subject only to the engine-wide throttle, if any.
func (b *Builder) MaxInFlight(l *throttle.Limiter) *Builder {
	b.limiter = l
	return b
}

// Send validates the accumulated configuration and, if it passes,
// freezes it into a new [Handle] ready for [Queue.Enqueue]. It does
// not itself enqueue the request — that is the caller's (or a
// higher-level client's) job, keeping this package free of any
// dependency on the engine.
func (b *Builder) Send() (*Handle, error) {
	if err := validate.Struct(&b.cfg); err != nil {
		return nil, &Error{Err: ErrInvalidConfig, Detail: err.Error()}
	}

	s := NewState(b.cfg, b.uploader, b.downloader, b.progressor, b.callback)
	s.SetLimiter(b.limiter)
	return NewHandle(s), nil
}
