// Package httpclient builds the outbound HTTP clients used by the model,
// embedding and web search backends.
package httpclient

import (
	"net/http"
	"time"

	reasonerrors "reasoner/internal/errors"
	"reasoner/internal/logging"
)

const defaultTimeout = 30 * time.Second

// Options configures New.
type Options struct {
	Timeout time.Duration
	Logger  logging.Logger
	// Breaker names the backend and turns on a circuit breaker when set.
	Breaker       string
	BreakerConfig reasonerrors.BreakerConfig
}

// New returns a client that logs each round trip at debug level. Proxy
// settings come from HTTP(S)_PROXY and NO_PROXY.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	logger := logging.WithComponent(opts.Logger, "http")

	var rt http.RoundTripper = &loggingTransport{base: transport(), logger: logger}
	if opts.Breaker != "" {
		cfg := opts.BreakerConfig
		if cfg.Logger == nil {
			cfg.Logger = opts.Logger
		}
		rt = &breakerTransport{base: rt, breaker: reasonerrors.NewBreaker(opts.Breaker, cfg)}
	}
	return &http.Client{Timeout: opts.Timeout, Transport: rt}
}

func transport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	clone := base.Clone()
	clone.Proxy = http.ProxyFromEnvironment
	return clone
}

type loggingTransport struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(started).Round(time.Millisecond)
	if err != nil {
		t.logger.Debug("%s %s failed after %s: %v", req.Method, req.URL.Host, elapsed, err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d in %s", req.Method, req.URL.Host, resp.StatusCode, elapsed)
	return resp, nil
}
