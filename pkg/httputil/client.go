// Package httputil holds the shared HTTP transport for outbound lookups.
package httputil

import (
	"net/http"
	"sync"
	"time"
)

var (
	transport     *http.Transport
	transportOnce sync.Once
)

func sharedTransport() *http.Transport {
	transportOnce.Do(func() {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = 10
		t.MaxIdleConnsPerHost = 2
		t.IdleConnTimeout = 30 * time.Second
		t.ResponseHeaderTimeout = 10 * time.Second
		t.ExpectContinueTimeout = time.Second
		transport = t
	})
	return transport
}

// NewClientWithTimeout returns a client on the shared transport. A zero
// timeout means 10s.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport(),
	}
}
