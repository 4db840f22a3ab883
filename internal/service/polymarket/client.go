package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultDataAPI = "https://data-api.polymarket.com"
	defaultClobAPI = "https://clob.polymarket.com"

	positionsLimit        = 500
	positionSizeThreshold = 0.1
)

// Client talks to the Polymarket public APIs. All requests share one rate
// limiter so a tick over many tokens cannot hammer the CLOB.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	dataAPI string
	clobAPI string
}

type ClientOption func(*Client)

// WithBaseURLs overrides the API endpoints, used by tests.
func WithBaseURLs(dataAPI, clobAPI string) ClientOption {
	return func(c *Client) {
		c.dataAPI = dataAPI
		c.clobAPI = clobAPI
	}
}

func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		dataAPI: defaultDataAPI,
		clobAPI: defaultClobAPI,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// numberString accepts a JSON number or string and keeps the raw digits.
type numberString string

func (n *numberString) UnmarshalJSON(b []byte) error {
	*n = numberString(bytes.Trim(b, `"`))
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", rawURL, err)
	}
	return nil
}

func (c *Client) GetPositions(ctx context.Context, wallet string) ([]Position, error) {
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(positionsLimit))
	params.Set("sizeThreshold", strconv.FormatFloat(positionSizeThreshold, 'g', -1, 64))

	var positions []Position
	if err := c.get(ctx, c.dataAPI+"/positions", params, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	// The CLOB returns the mid as a JSON string, e.g. {"mid": "0.55"}.
	var resp struct {
		Mid numberString `json:"mid"`
	}
	if err := c.get(ctx, c.clobAPI+"/midpoint", params, &resp); err != nil {
		return 0, err
	}
	mid, err := strconv.ParseFloat(string(resp.Mid), 64)
	if err != nil {
		return 0, fmt.Errorf("midpoint for %s: parse %q: %w", tokenID, resp.Mid, err)
	}
	return mid, nil
}

func (c *Client) GetActivity(ctx context.Context, wallet string, since string, limit int) ([]Activity, error) {
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(limit))
	if since != "" {
		params.Set("startTime", since)
	}

	var activities []Activity
	if err := c.get(ctx, c.dataAPI+"/activity", params, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}
