package httpjson

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/amirimatin/go-dbmon/pkg/transport"
)

// Client is a thin HTTP client for the admin API. It supports optional TLS
// configuration and simple retry with backoff for robustness.
type Client struct {
	httpc     *http.Client
	transport *http.Transport
	isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	tr := &http.Transport{}
	return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
	if c.transport != nil {
		c.transport.TLSClientConfig = cfg
	}
	c.isTLS = cfg != nil
	return c
}

func (c *Client) url(addr, path string) string {
	scheme := "http"
	if c.isTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, addr, path)
}

// doJSON performs one request with up to three attempts and exponential
// backoff, decoding the response body into out on success.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
		} else {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				lastErr = fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, string(b))
			} else if err := json.Unmarshal(b, out); err != nil {
				lastErr = fmt.Errorf("%s: decode response: %w", url, err)
			} else {
				return nil
			}
		}
		// backoff unless context is done
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
		}
	}
	return lastErr
}

func (c *Client) List(ctx context.Context, addr string) (transport.ListResponse, error) {
	var out transport.ListResponse
	err := c.doJSON(ctx, http.MethodGet, c.url(addr, "/monitors"), nil, &out)
	return out, err
}

func (c *Client) Show(ctx context.Context, addr string, req transport.ShowRequest) (transport.ShowResponse, error) {
	var out transport.ShowResponse
	path := "/monitors/show"
	if req.Name != "" {
		path += "?name=" + url.QueryEscape(req.Name)
	}
	err := c.doJSON(ctx, http.MethodGet, c.url(addr, path), nil, &out)
	if err == nil && out.Error != "" {
		err = errors.New(out.Error)
	}
	return out, err
}

func (c *Client) StartMonitor(ctx context.Context, addr string, req transport.ControlRequest) (transport.ControlResponse, error) {
	return c.control(ctx, c.url(addr, "/monitors/start"), req)
}

func (c *Client) StopMonitor(ctx context.Context, addr string, req transport.ControlRequest) (transport.ControlResponse, error) {
	return c.control(ctx, c.url(addr, "/monitors/stop"), req)
}

func (c *Client) control(ctx context.Context, url string, req transport.ControlRequest) (transport.ControlResponse, error) {
	var out transport.ControlResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	if err := c.doJSON(ctx, http.MethodPost, url, body, &out); err != nil {
		return out, err
	}
	if !out.Ok && out.Error != "" {
		return out, errors.New(out.Error)
	}
	return out, nil
}

func (c *Client) Check(ctx context.Context, addr string, req transport.CheckRequest) (transport.CheckResponse, error) {
	var out transport.CheckResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	if err := c.doJSON(ctx, http.MethodPost, c.url(addr, "/monitors/check"), body, &out); err != nil {
		return out, err
	}
	return out, nil
}

var _ transport.RPCClient = (*Client)(nil)
