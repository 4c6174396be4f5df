package remote

import (
	"net"
	"net/http"
	"time"
)

var (
	DefaultMaxConnsPerHost     = 64
	DefaultMaxIdleConnsPerHost = 16
	DefaultTimeout             = 120 * time.Second
	DefaultKeepAlive           = 180 * time.Second
)

// NewHTTPTransport returns a transport that never negotiates compression:
// byte ranges of a compressed representation don't match ranges of the file.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		IdleConnTimeout:     time.Minute,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		Proxy:               http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		DisableCompression:  true,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewHTTPClient returns a new Client for remote files.
// Client is safe for concurrent use by multiple goroutines.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: NewHTTPTransport(),
	}
}

var defaultClient = NewHTTPClient()

// DefaultClient returns the shared client used when none is configured.
func DefaultClient() *http.Client {
	return defaultClient
}
