package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// ImportKeyEnv names the environment variable holding the import API key.
	// It is read on every telemetry call so the key can rotate without a restart.
	ImportKeyEnv = "ZIVYOBRAZ_API_IMPORT_KEY"

	userAgent           = "zivyobraz-proxy/1.0"
	defaultHTTPTimeout  = 30 * time.Second
	maxResponseBodySize = 16 << 20

	importKeyParam = "import_key"
	redacted       = "REDACTED"
)

// ErrResponseTooLarge is returned when an upstream body exceeds the client's size limit
var ErrResponseTooLarge = errors.New("response too large")

// StatusError reports a non-200 answer from an upstream API
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream returned HTTP %d", e.Op, e.StatusCode)
}

// ImageRequest identifies the bitmap to fetch from the render API
type ImageRequest struct {
	MAC       string
	Width     int
	Height    int
	ColorType string
	Voltage   float64
}

// Telemetry is one device report for the import API
type Telemetry struct {
	DeviceName   string
	Battery      int
	Voltage      float64
	Temperature  int
	LastActivity string
}

// Client performs the outbound GET calls to the render and import APIs
type Client struct {
	renderURL   string
	importURL   string
	http        *http.Client
	getenv      func(string) string
	maxBodySize int64
}

// Option mutates the client during construction
type Option func(*Client)

// WithHTTPClient installs a custom http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithEnvLookup replaces os.Getenv for reading the import key
func WithEnvLookup(fn func(string) string) Option {
	return func(c *Client) { c.getenv = fn }
}

// NewClient creates a client for the given render and import base URLs
func NewClient(renderURL, importURL string, opts ...Option) *Client {
	c := &Client{
		renderURL:   renderURL,
		importURL:   importURL,
		http:        &http.Client{Timeout: defaultHTTPTimeout},
		getenv:      os.Getenv,
		maxBodySize: maxResponseBodySize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return c
}

// RenderQuery builds the render API query parameters
func RenderQuery(req ImageRequest) url.Values {
	q := url.Values{}
	q.Set("mac", req.MAC)
	q.Set("timestamp_check", "1")
	q.Set("x", strconv.Itoa(req.Width))
	q.Set("y", strconv.Itoa(req.Height))
	q.Set("v", FormatVoltage(req.Voltage))
	q.Set("c", req.ColorType)
	q.Set("fw", "1")
	return q
}

// TelemetryQuery builds the import API query parameters, namespaced by device name
func TelemetryQuery(t Telemetry, importKey string) url.Values {
	prefix := "device." + t.DeviceName + "."
	q := url.Values{}
	q.Set(importKeyParam, importKey)
	q.Set(prefix+"battery", strconv.Itoa(t.Battery))
	q.Set(prefix+"voltage", FormatVoltage(t.Voltage))
	q.Set(prefix+"temperature_value", strconv.Itoa(t.Temperature))
	q.Set(prefix+"last_activity", t.LastActivity)
	return q
}

// FormatVoltage renders volts with at least one fractional digit (3.7, 0.0, 4.0)
func FormatVoltage(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// FetchImage downloads the raw bitmap for a device. A non-200 answer is
// returned as *StatusError with the status code.
func (c *Client) FetchImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	status, body, err := c.get(ctx, c.renderURL, RenderQuery(req), true)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "fetch image", StatusCode: status}
	}
	return body, nil
}

// SendTelemetry reports device telemetry to the import API and returns the
// status code. A non-200 answer is also returned as *StatusError.
func (c *Client) SendTelemetry(ctx context.Context, t Telemetry) (int, error) {
	query := TelemetryQuery(t, c.getenv(ImportKeyEnv))
	status, _, err := c.get(ctx, c.importURL, query, false)
	if err != nil {
		return 0, fmt.Errorf("send telemetry: %w", err)
	}
	if status != http.StatusOK {
		return status, &StatusError{Op: "send telemetry", StatusCode: status}
	}
	return status, nil
}

func (c *Client) get(ctx context.Context, base string, query url.Values, readBody bool) (int, []byte, error) {
	endpoint, err := buildURL(base, query)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error carries the full request URL, import key included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactURL(urlErr.URL)
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	if !readBody || resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodySize))
		return resp.StatusCode, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return resp.StatusCode, nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBodySize)
	}
	return resp.StatusCode, body, nil
}

// redactURL masks the import key so request URLs are safe to log
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	q := u.Query()
	if !q.Has(importKeyParam) {
		return raw
	}
	q.Set(importKeyParam, redacted)
	u.RawQuery = q.Encode()
	return u.String()
}

// buildURL merges query into base, keeping any parameters base already carries
func buildURL(base string, query url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	merged := u.Query()
	for k, vs := range query {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}
