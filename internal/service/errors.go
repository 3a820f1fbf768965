package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

// ErrorKind classifies a failed proxy transaction.
type ErrorKind int

const (
	// KindInternal is a failure inside the proxy itself (request build, rewrite).
	KindInternal ErrorKind = iota
	// KindUnreachable covers DNS failures and refused or reset connections.
	KindUnreachable
	// KindTimeout is an upstream deadline or network timeout.
	KindTimeout
	// KindTLS is a handshake or certificate failure toward the target.
	KindTLS
	// KindCanceled means the client went away before the upstream answered.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindTLS:
		return "tls"
	case KindCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// ProxyError is returned by Forward when a transaction fails. None of these
// are retried; the client may simply repeat the request.
type ProxyError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProxyError) Error() string {
	return e.Err.Error()
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// classifyUpstream maps an error from the upstream round trip to a ProxyError.
func classifyUpstream(err error) *ProxyError {
	return &ProxyError{Kind: upstreamKind(err), Err: err}
}

func upstreamKind(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var (
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &certErr),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr):
		return KindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnreachable
}
