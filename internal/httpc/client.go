// Package httpc builds the HTTP clients used to reach the LLM server and
// the puppy action API. Every client has connect and overall timeouts.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	dialTimeout    = 10 * time.Second
)

// NewClient returns a client whose requests give up after timeout.
// A non-positive timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     time.Minute,
			TLSHandshakeTimeout: dialTimeout,
		},
	}
}

// PostJSON sends v as a JSON body. The caller closes the response body.
func PostJSON(ctx context.Context, c *http.Client, url string, v any) (*http.Response, error) {
	if c == nil {
		c = NewClient(DefaultTimeout)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("httpc: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("httpc: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}
