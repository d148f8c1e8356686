package cast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotConfigured  = errors.New("cast bridge not configured")
	ErrDeviceNotFound = errors.New("cast device not found")
)

const (
	defaultTimeout = 10 * time.Second

	// StreamTypeLive tells the receiver the media has no known end.
	StreamTypeLive     = "LIVE"
	StreamTypeBuffered = "BUFFERED"
)

// Device is a cast target reported by the bridge.
type Device struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Address      string `json:"address,omitempty"`
	Port         int    `json:"port,omitempty"`
}

// Media describes what a device should load.
type Media struct {
	ContentID   string `json:"content_id"` // the media URL
	ContentType string `json:"content_type"`
	StreamType  string `json:"stream_type"`
	Title       string `json:"title,omitempty"`
}

// Client talks to one cast bridge. It is safe for concurrent use.
type Client struct {
	base   string
	client *http.Client
}

// New returns a Client for the bridge at baseURL. An empty baseURL yields a
// client whose calls return ErrNotConfigured.
func New(baseURL string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Configured reports whether a bridge URL was given.
func (c *Client) Configured() bool { return c.base != "" }

// ListDevices returns the devices currently known to the bridge.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var out struct {
		Devices []Device `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if out.Devices == nil {
		out.Devices = []Device{}
	}
	return out.Devices, nil
}

// Play asks device deviceID to load m and returns the bridge's status.
func (c *Client) Play(ctx context.Context, deviceID string, m Media) (json.RawMessage, error) {
	if m.StreamType == "" {
		m.StreamType = StreamTypeLive
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}
	var status json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(deviceID)+"/play", body, &status); err != nil {
		return nil, fmt.Errorf("play on %s: %w", deviceID, err)
	}
	slog.Info("cast: playback started", "device_id", deviceID, "media", m.ContentID)
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrDeviceNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("bridge returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
