package protocol

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxBodySize bounds how much of a response is read
const maxBodySize = 1 << 20

// HTTPClient queries servers over plain HTTP.
type HTTPClient struct {
	uniqueID    string
	defaultPort int
	http        *http.Client
}

// NewHTTPClient creates a client identifying itself as uniqueID.
// Addresses without a port use defaultPort.
func NewHTTPClient(uniqueID string, defaultPort int, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		uniqueID:    uniqueID,
		defaultPort: defaultPort,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               nil,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// ServerInfo fetches and parses /serverinfo
func (c *HTTPClient) ServerInfo(ctx context.Context, address string) (*ServerInfo, error) {
	body, err := c.get(ctx, address, PathServerInfo)
	if err != nil {
		return nil, err
	}
	info, err := ParseServerInfo(body)
	if err != nil {
		return nil, fmt.Errorf("serverinfo %s: %w", address, err)
	}
	return info, nil
}

// AppList fetches and parses /applist
func (c *HTTPClient) AppList(ctx context.Context, address string) ([]AppInfo, error) {
	body, err := c.get(ctx, address, PathAppList)
	if err != nil {
		return nil, err
	}
	apps, err := ParseAppList(body)
	if err != nil {
		return nil, fmt.Errorf("applist %s: %w", address, err)
	}
	return apps, nil
}

// CloseIdleConnections releases pooled connections
func (c *HTTPClient) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *HTTPClient) requestURL(address, path string) (string, error) {
	hostPort := NormalizeAddress(address, c.defaultPort)
	if hostPort == "" {
		return "", fmt.Errorf("protocol: empty address")
	}
	q := url.Values{}
	q.Set("uniqueid", c.uniqueID)
	q.Set("uuid", strings.ReplaceAll(uuid.NewString(), "-", ""))
	u := url.URL{
		Scheme:   "http",
		Host:     hostPort,
		Path:     path,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (c *HTTPClient) get(ctx context.Context, address, path string) ([]byte, error) {
	target, err := c.requestURL(address, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", address, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s%s failed: %w", address, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s%s failed: %w", address, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return body, nil
}
