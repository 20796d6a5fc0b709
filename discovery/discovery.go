// Package discovery implements the engine's HTTP discovery endpoint client
// (spec.md §6): GET /json/version and GET /json.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ByteAshen/cdpgo/errdefs"
)

// VersionInfo is the shape returned by GET /json/version.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetInfo is one entry of GET /json: a discoverable attachable target.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Client queries one engine's discovery endpoint over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// sf coalesces concurrent Version() calls into a single HTTP round
	// trip: the supervisor's heartbeat and an application's own version
	// check can land in the same instant, and /json/version is cheap to
	// share rather than worth doubling up on.
	sf singleflight.Group
}

// New builds a discovery Client against http://host:port.
func New(host string, port int, timeout time.Duration) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Version fetches GET /json/version, coalescing concurrent callers.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	v, err, _ := c.sf.Do("version", func() (interface{}, error) {
		var v VersionInfo
		if err := c.get(ctx, "/json/version", &v); err != nil {
			return VersionInfo{}, err
		}
		return v, nil
	})
	if err != nil {
		return VersionInfo{}, err
	}
	return v.(VersionInfo), nil
}

// Targets fetches GET /json.
func (c *Client) Targets(ctx context.Context) ([]TargetInfo, error) {
	var targets []TargetInfo
	if err := c.get(ctx, "/json", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building discovery request for %s: %w", path, errdefs.ErrInvalidConfig)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, errdefs.ErrConnectionFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery endpoint %s returned status %d: %w", path, resp.StatusCode, errdefs.ErrConnectionFailed)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, errdefs.ErrWireProtocol)
	}
	return nil
}
