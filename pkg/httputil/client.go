// Package httputil provides the shared HTTP plumbing for the Vigil gateway:
// pooled transports, timeout-tiered clients, and bounded response reads for
// the reasoning and embedding collaborators.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds reads of collaborator response bodies. Reasoning
// and embedding services are external; a misbehaving one must not be able
// to OOM the gateway.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Shared transport with connection pooling, reused by every client so that
// repeated reasoning/embedding calls keep their TCP connections warm.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for collaborator calls.
type TimeoutTier int

const (
	// TierFast for health probes (5s)
	TierFast TimeoutTier = iota
	// TierMedium for embedding calls (30s)
	TierMedium
	// TierSlow for LLM reasoning calls (60s)
	TierSlow
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:   5 * time.Second,
	TierMedium: 30 * time.Second,
	TierSlow:   60 * time.Second,
}

var (
	clientFast   *http.Client
	clientMedium *http.Client
	clientSlow   *http.Client
	clientOnce   sync.Once
)

func initClients() {
	clientFast = &http.Client{Timeout: timeoutDurations[TierFast], Transport: sharedTransport}
	clientMedium = &http.Client{Timeout: timeoutDurations[TierMedium], Transport: sharedTransport}
	clientSlow = &http.Client{Timeout: timeoutDurations[TierSlow], Transport: sharedTransport}
}

// Client returns the shared HTTP client for the given timeout tier. These
// clients share one connection pool; use them instead of constructing a new
// http.Client per request.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierFast:
		return clientFast
	case TierSlow:
		return clientSlow
	default:
		return clientMedium
	}
}

// FastClient returns a client with 5s timeout.
func FastClient() *http.Client {
	return Client(TierFast)
}

// MediumClient returns a client with 30s timeout.
func MediumClient() *http.Client {
	return Client(TierMedium)
}

// SlowClient returns a client with 60s timeout.
func SlowClient() *http.Client {
	return Client(TierSlow)
}

// NewClient returns a client on the shared transport with a caller-chosen
// timeout, for collaborators whose latency is configured at runtime
// (the reasoning service timeout is tunable).
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = timeoutDurations[TierSlow]
	}
	return &http.Client{Timeout: timeout, Transport: sharedTransport}
}

// ReadResponseBody reads an HTTP response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads a response body for error reporting with a tight limit.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose drains and closes a response body so the pooled connection
// can be reused.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
