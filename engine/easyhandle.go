package engine

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/arlobridge/flightreq/request"
	"github.com/arlobridge/flightreq/telemetry"
)

// easyHandle is the Go analogue of a curl easy handle: everything the
// transport needs to drive one [request.State] to completion, built
// fresh from its configuration snapshot at attach time and discarded
// at RemoveEasy.
type easyHandle struct {
	state  *request.State
	cfg    request.Config
	cancel context.CancelCauseFunc
}

func newEasyHandle(s *request.State) (*easyHandle, error) {
	cfg := s.Config()

	if _, err := url.Parse(cfg.QueryParams.Apply(cfg.URL)); err != nil {
		return nil, &request.Error{Err: request.ErrEasyInit, Detail: err.Error()}
	}

	return &easyHandle{state: s, cfg: cfg}, nil
}

// run executes the request end to end and reports the outcome to t.
// It is called on its own goroutine by httpTransport.AddEasy.
func (eh *easyHandle) run(t *httpTransport) {
	ctx, cancel := context.WithCancelCause(context.Background())
	eh.cancel = cancel
	defer cancel(nil)

	eh.state.SetCancelFunc(func() { cancel(errUserCancelled) })

	if eh.cfg.RequestTimeout > 0 {
		var totalCancel context.CancelFunc
		ctx, totalCancel = context.WithTimeout(ctx, eh.cfg.RequestTimeout)
		defer totalCancel()
	}

	traceID := telemetry.NewTraceID()
	eh.state.SetTraceID(traceID)

	ctx, span := telemetry.StartAttempt(ctx, t.tracer, eh.cfg.Method.String(), eh.cfg.URL, traceID)

	statusCode, effectiveURL, err := eh.doRequest(ctx, t)

	telemetry.EndAttempt(span, statusCode, err)

	if err != nil {
		eh.fail(ctx, err)
		t.complete(Message{State: eh.state, Err: err})
		return
	}

	eh.state.MarkDone(effectiveURL, statusCode)
	t.complete(Message{State: eh.state, StatusCode: statusCode, EffectiveURL: effectiveURL})
}

func (eh *easyHandle) doRequest(ctx context.Context, t *httpTransport) (statusCode int, effectiveURL string, err error) {
	rawURL := eh.cfg.QueryParams.Apply(eh.cfg.URL)

	var body io.Reader
	uploader := eh.state.Uploader()
	size := uploader.Size()
	if size > 0 {
		body = uploadReader{state: eh.state}
	}

	req, err := http.NewRequestWithContext(ctx, eh.cfg.Method.String(), rawURL, body)
	if err != nil {
		return 0, "", err
	}
	if size > 0 {
		req.ContentLength = size
	}

	eh.cfg.Headers.Range(func(key, value string) {
		req.Header.Set(key, value)
	})
	if eh.cfg.ResumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", eh.cfg.ResumeOffset))
	}

	doer, err := eh.doer(t)
	if err != nil {
		return 0, "", err
	}

	resp, err := doer.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	eh.state.WriteHeaderLine(fmt.Sprintf("HTTP/%d.%d %03d %s", resp.ProtoMajor, resp.ProtoMinor, resp.StatusCode, http.StatusText(resp.StatusCode)))
	for key, values := range resp.Header {
		for _, value := range values {
			eh.state.WriteHeaderLine(key + ": " + value)
		}
	}

	uploadTotal := size
	downloadTotal := resp.ContentLength

	buf := make([]byte, 32*1024)
	var downloaded int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if wn, werr := eh.state.WriteDownload(buf[:n]); werr != nil || wn != n {
				if werr == nil {
					werr = io.ErrShortWrite
				}
				eh.state.MarkFailed(request.Cancelled, "callback aborted")
				return 0, "", werr
			}
			downloaded += int64(n)
			// The request body, if any, is already fully sent by the
			// time this loop runs, so uploadedNow == uploadedTotal here.
			if perr := eh.state.UpdateProgress(downloaded, downloadTotal, uploadTotal, uploadTotal); perr != nil {
				eh.state.MarkFailed(request.Cancelled, "callback aborted")
				return 0, "", perr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, "", rerr
		}
	}

	effective := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}

	return resp.StatusCode, effective, nil
}

// doer resolves which HTTPDoer services this attempt: the engine-wide
// override if one was configured, or a client built fresh from this
// request's own TLS/proxy/redirect settings otherwise.
func (eh *easyHandle) doer(t *httpTransport) (HTTPDoer, error) {
	if t.doer != nil {
		return t.doer, nil
	}
	return buildClient(eh.cfg)
}

// fail translates a transport-level error into the state's terminal
// status, distinguishing an idle timeout (our own cancellation cause),
// a connect or total-request timeout, and an explicit user
// cancellation from any other failure.
func (eh *easyHandle) fail(ctx context.Context, err error) {
	cause := context.Cause(ctx)
	var netErr net.Error
	switch {
	case cause == errIdleTimeout:
		eh.state.MarkFailed(request.Timeout, "operation timeout")
	case cause == errUserCancelled:
		eh.state.MarkFailed(request.Cancelled, "operation cancelled")
	case errors.As(err, &netErr) && netErr.Timeout():
		eh.state.MarkFailed(request.Timeout, "operation timeout")
	default:
		msg := err.Error()
		if msg == "" {
			msg = "unknown error"
		}
		eh.state.MarkFailed(request.Failed, msg)
	}
}

// uploadReader adapts State's read trampoline to io.Reader for
// http.NewRequestWithContext's body parameter. An uploader error
// marks the request Cancelled; a zero-byte read is reported as io.EOF.
type uploadReader struct {
	state *request.State
}

func (u uploadReader) Read(p []byte) (int, error) {
	n, err := u.state.ReadUpload(p)
	if err != nil {
		u.state.MarkFailed(request.Cancelled, "callback aborted")
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// buildClient constructs a one-shot *http.Client carrying cfg's
// connect/total timeouts, TLS verification, CA trust, client
// certificate, proxy, pinned public key, and redirect limit. It is
// not pooled across requests; each attempt gets its own, mirroring
// curl's per-easy-handle configurability rather than Go's usual
// shared-transport idiom, since request-level TLS/proxy settings can
// legitimately differ between two requests issued back to back.
func buildClient(cfg request.Config) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	tlsConfig := &tls.Config{InsecureSkipVerify: !cfg.TLSVerify}

	if cfg.TLSCAPath != "" || len(cfg.TLSCABundle) > 0 {
		pool := x509.NewCertPool()
		if len(cfg.TLSCABundle) > 0 {
			pool.AppendCertsFromPEM(cfg.TLSCABundle)
		}
		if cfg.TLSCAPath != "" {
			pem, err := os.ReadFile(cfg.TLSCAPath)
			if err != nil {
				return nil, fmt.Errorf("engine: reading CA bundle: %w", err)
			}
			pool.AppendCertsFromPEM(pem)
		}
		tlsConfig.RootCAs = pool
	}

	if cc := cfg.ClientCert; cc != nil {
		cert, err := clientCertificate(cc)
		if err != nil {
			return nil, fmt.Errorf("engine: loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.PinnedPubKey != "" {
		tlsConfig.InsecureSkipVerify = true
		tlsConfig.VerifyPeerCertificate = pinnedPubKeyVerifier(cfg.PinnedPubKey)
	}

	transport.TLSClientConfig = tlsConfig

	if cfg.ConnectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	}

	if p := cfg.Proxy; p != nil {
		proxyURL, err := url.Parse(p.URL)
		if err != nil {
			return nil, fmt.Errorf("engine: parsing proxy URL: %w", err)
		}
		if p.Username != "" {
			proxyURL.User = url.UserPassword(p.Username, p.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{Transport: transport}

	if cfg.Redirections == 0 {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if cfg.Redirections > 0 {
		limit := cfg.Redirections
		client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) > limit {
				return fmt.Errorf("engine: stopped after %d redirects", limit)
			}
			return nil
		}
	}

	return client, nil
}

func clientCertificate(cc *request.ClientCert) (tls.Certificate, error) {
	if len(cc.P12) > 0 {
		return tls.Certificate{}, fmt.Errorf("engine: PKCS#12 client certificates require an external decoder, none configured")
	}
	if len(cc.CertPEM) == 0 || len(cc.KeyPEM) == 0 {
		return tls.Certificate{}, fmt.Errorf("engine: no usable client certificate material")
	}
	return tls.X509KeyPair(cc.CertPEM, cc.KeyPEM)
}

// pinnedPubKeyVerifier builds a VerifyPeerCertificate hook matching
// curl's --pinnedpubkey: pin is compared, in curl's "sha256//<base64>"
// form, against the base64 SHA-256 digest of each presented
// certificate's DER-encoded public key.
func pinnedPubKeyVerifier(pin string) func([][]byte, [][]*x509.Certificate) error {
	want := strings.TrimPrefix(pin, "sha256//")

	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				continue
			}
			digest := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
			if base64.StdEncoding.EncodeToString(digest[:]) == want {
				return nil
			}
		}
		return fmt.Errorf("engine: no presented certificate matched the pinned public key")
	}
}
