// Package device drives the relay and light strip of the remote controller
// over its plain-HTTP protocol.
package device

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/relayd/internal/metrics"
)

// DefaultTimeout bounds every device request.
const DefaultTimeout = 5 * time.Second

// StripParams is the absolute state sent to the light strip.
type StripParams struct {
	On         bool
	Brightness int
	R, G, B    uint8
}

// Query encodes the strip parameters as the device expects them.
func (p StripParams) Query() url.Values {
	q := url.Values{}
	if !p.On {
		q.Set("on", "0")
		return q
	}
	q.Set("on", "1")
	q.Set("brightness", strconv.Itoa(p.Brightness))
	q.Set("r", strconv.Itoa(int(p.R)))
	q.Set("g", strconv.Itoa(int(p.G)))
	q.Set("b", strconv.Itoa(int(p.B)))
	q.Set("mode", "solid")
	return q
}

// Client performs single-attempt HTTP calls against the device.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Recorder
}

// NewClient creates a device client. A zero timeout uses DefaultTimeout;
// a non-positive rateLimitRPS disables request limiting.
func NewClient(timeout time.Duration, rateLimitRPS float64, rec *metrics.Recorder) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		metrics:    rec,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// RelayStatus reports whether the relay is currently on.
func (c *Client) RelayStatus(ctx context.Context, baseURL string) (bool, error) {
	body, err := c.get(ctx, baseURL, "relaystatus", nil)
	if err != nil {
		return false, err
	}

	switch state := strings.TrimSpace(string(body)); state {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, errors.Newf("unexpected relay status %q", state)
	}
}

// ToggleRelay flips the relay.
func (c *Client) ToggleRelay(ctx context.Context, baseURL string) error {
	_, err := c.get(ctx, baseURL, "relay", nil)
	return err
}

// SetStrip sends an absolute strip state.
func (c *Client) SetStrip(ctx context.Context, baseURL string, p StripParams) error {
	_, err := c.get(ctx, baseURL, "strip", p.Query())
	return err
}

func (c *Client) get(ctx context.Context, baseURL, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s: rate limiter", path)
		}
	}

	target := strings.TrimRight(baseURL, "/") + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := time.Now()
	body, err := c.do(ctx, target)
	c.metrics.ObserveDeviceRequest(path, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", target)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
	}
	return body, nil
}
