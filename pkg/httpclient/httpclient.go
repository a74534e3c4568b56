// Package httpclient builds the HTTP client the wallet uses to reach issuers and DID hosts. Requests are traced
// and idempotent requests are retried with exponential backoff on transport errors and gateway failures.
package httpclient

import (
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 200 * time.Millisecond
)

type Config struct {
	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// New returns a client for cfg. Zero values take the package defaults; a negative timeout disables it.
func New(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	base := cfg.Transport
	if base == nil {
		base = defaultTransport{}
	}
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &retryTransport{
			next:            otelhttp.NewTransport(base),
			maxRetries:      cfg.MaxRetries,
			initialInterval: cfg.InitialInterval,
		},
	}
}

// defaultTransport defers to whatever http.DefaultTransport is at request time.
type defaultTransport struct{}

func (defaultTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return http.DefaultTransport.RoundTrip(req)
}

type retryTransport struct {
	next            http.RoundTripper
	maxRetries      uint64
	initialInterval time.Duration
}

type retryableStatus int

func (s retryableStatus) Error() string {
	return "retryable status " + http.StatusText(int(s))
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.maxRetries == 0 || !replayable(req) {
		return t.next.RoundTrip(req)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.initialInterval
	policy.MaxElapsedTime = 0

	var last *http.Response
	attempt := 0
	resp, err := backoff.RetryNotifyWithData(func() (*http.Response, error) {
		if last != nil {
			drain(last)
			last = nil
		}
		attempt++
		try := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(errors.Wrap(err, "rewinding request body"))
			}
			try = req.Clone(req.Context())
			try.Body = body
		}
		resp, err := t.next.RoundTrip(try)
		if err != nil {
			return nil, err
		}
		if shouldRetry(resp.StatusCode) {
			last = resp
			return nil, retryableStatus(resp.StatusCode)
		}
		return resp, nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, t.maxRetries), req.Context()), func(err error, wait time.Duration) {
		logrus.WithContext(req.Context()).WithError(err).Debugf("retrying %s %s in %s", req.Method, req.URL.Redacted(), wait)
	})
	if err != nil {
		var status retryableStatus
		if errors.As(err, &status) && last != nil {
			return last, nil
		}
		if last != nil {
			drain(last)
		}
		return nil, err
	}
	return resp, nil
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	}
	return false
}

func shouldRetry(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
