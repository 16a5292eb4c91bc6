package telegram

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/soundloader/core/telegram/netutil"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
	defaultClientTimeout   = 120 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryBackoff    = 2 * time.Second
)

func baseTransport(maxIdle, maxIdlePerHost int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: time.Second,
	}
}

// BuildHTTPClient returns the client used for Bot API calls. The overall
// timeout leaves room for long-poll getUpdates rounds.
func BuildHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultClientTimeout,
		Transport: &retryTransport{
			base:       baseTransport(100, 10),
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

// BuildDownloadClient returns the client used for fetching media payloads.
// Downloads are not retried at the transport level; a failed download is
// reported to the conversation instead.
func BuildDownloadClient() *http.Client {
	return &http.Client{
		Timeout:   5 * time.Minute,
		Transport: baseTransport(20, 4),
	}
}

// retryTransport retries transient transport errors with linear backoff.
// Requests with a non-replayable body are never retried.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.base
	if next == nil {
		next = http.DefaultTransport
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := next.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt >= t.maxRetries || !netutil.ShouldRetry(err) {
			return nil, lastErr
		}
		req, err = rewindRequest(req)
		if err != nil {
			return nil, lastErr
		}
		if err := sleepCtx(req.Context(), t.backoff*time.Duration(attempt+1)); err != nil {
			return nil, err
		}
	}
}

// rewindRequest clones req with a fresh body for the next attempt. It fails
// when the body was already consumed and cannot be reproduced.
func rewindRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	} else if req.Body != nil {
		return nil, http.ErrBodyReadAfterClose
	}
	return clone, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
