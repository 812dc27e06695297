package spikedensity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Probe describes a remote dataset without downloading it.
type Probe struct {
	Size        int64 // -1 when the server does not say
	ContentType string
	Ranges      bool
}

// HTTPClient fetches dataset metadata from resolved locators.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a client with a bounded per-request timeout.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: 10 * time.Second}}
}

// Head issues HEAD against url.
func (c *HTTPClient) Head(ctx context.Context, url string) (Probe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Probe{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Probe{}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return Probe{}, fmt.Errorf("HEAD %s: %d", url, resp.StatusCode)
	}

	p := Probe{Size: -1, ContentType: resp.Header.Get("Content-Type")}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		p.Size = n
	}
	p.Ranges = resp.Header.Get("Accept-Ranges") == "bytes"
	return p, nil
}
