package backend

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kalviis/factory-bridge/internal/config"
)

const messagesPath = "/v1/messages"

// Client sends Messages API requests to the backend gateway. It keeps two
// HTTP clients: buffered calls get a whole-request deadline, streaming calls
// only a connect and first-response deadline.
type Client struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
	health  *Health
}

func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		health:  NewHealth(defaultFailureThreshold),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		stream: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: cfg.StreamTimeout,
				}).DialContext,
				ResponseHeaderTimeout: cfg.StreamTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Health reports backend reachability as seen by Send.
func (c *Client) Health() *Health { return c.health }

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Send posts body to <base>/v1/messages. The caller owns the response body.
func (c *Client) Send(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.client
	if stream {
		// one connection per stream; it may be cut at the terminal marker
		req.Close = true
		client = c.stream
	}

	resp, err := client.Do(req)
	if err != nil {
		// a caller that went away says nothing about the backend
		if ctx.Err() == nil {
			c.health.RecordFailure(err)
		}
		return nil, fmt.Errorf("backend request: %w", err)
	}
	c.health.RecordSuccess()
	return resp, nil
}
