// Package httpclient provides shared HTTP clients with connection pooling.
//
// IMPORTANT: Callers MUST close response bodies:
//
//	resp, err := httpclient.Default().Get(url)
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()  // Required even on non-2xx status
//
// This package centralizes HTTP client creation so every source adapter
// shares one connection pool. Creating separate http.Client instances per
// request wastes connection pool resources.
package httpclient

import (
	"net"
	"net/http"
	"sync"
	"time"
)

var (
	// Shared transport for connection pooling
	sharedTransport *http.Transport
	transportOnce   sync.Once

	defaultClient *http.Client
	clientOnce    sync.Once
)

// getSharedTransport returns the shared transport with connection pooling settings.
func getSharedTransport() *http.Transport {
	transportOnce.Do(func() {
		sharedTransport = &http.Transport{
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
			ResponseHeaderTimeout: 30 * time.Second,
		}
	})
	return sharedTransport
}

// Default returns a shared HTTP client with a 30-second timeout.
// Suitable for most feed calls.
func Default() *http.Client {
	clientOnce.Do(func() {
		defaultClient = &http.Client{
			Transport: getSharedTransport(),
			Timeout:   30 * time.Second,
		}
	})
	return defaultClient
}

// WithTimeout returns a client with the given timeout on the shared
// transport. The client struct itself is cheap; the pool is what matters.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: getSharedTransport(),
		Timeout:   timeout,
	}
}
