package ripestat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/metrics"
)

const (
	DefaultBaseURL   = "https://stat.ripe.net/data/"
	DefaultSourceApp = "compare-aspaths"

	bgpStateDataCall = "bgp-state"
)

var (
	// ErrNoData is returned when RIPEstat answers with anything but 200 OK.
	// It means the state is not available, not that it is empty.
	ErrNoData = errors.New("ripestat returned no data")

	ErrBaseURLInvalid = errors.New("ripestat base url is invalid")
	ErrResourceEmpty  = errors.New("resource is required")
	ErrTimestampEmpty = errors.New("timestamp is required")
)

// StatusError carries the status code of a non-200 response. It unwraps to
// ErrNoData.
type StatusError struct {
	DataCall   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s responded with status %d", ErrNoData, e.DataCall, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrNoData }

type ClientConfig struct {
	// HTTPClient is used for all requests. (Optional) http.DefaultClient
	// is used if left empty.
	HTTPClient *http.Client

	// BaseURL is the data API root, e.g. https://stat.ripe.net/data/.
	BaseURL string

	// SourceApp identifies this tool to RIPEstat.
	SourceApp string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (cfg *ClientConfig) Validate() error {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SourceApp == "" {
		cfg.SourceApp = DefaultSourceApp
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return nil
}

type Client struct {
	http      *http.Client
	baseURL   *url.URL
	sourceApp string
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBaseURLInvalid, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q must be absolute", ErrBaseURLInvalid, cfg.BaseURL)
	}
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}

	return &Client{
		http:      cfg.HTTPClient,
		baseURL:   base,
		sourceApp: cfg.SourceApp,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// BGPState fetches the routing state for resource as of the RIS dump in
// effect at timestamp. A non-200 response yields a nil state and an error
// wrapping ErrNoData.
func (c *Client) BGPState(ctx context.Context, resource, timestamp string) (*BGPState, error) {
	if resource == "" {
		return nil, ErrResourceEmpty
	}
	if timestamp == "" {
		return nil, ErrTimestampEmpty
	}

	params := url.Values{}
	params.Set("sourceapp", c.sourceApp)
	params.Set("resource", resource)
	params.Set("timestamp", timestamp)

	body, err := c.get(ctx, bgpStateDataCall, params)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp bgpStateResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", bgpStateDataCall, err)
	}

	c.log.Debug("ripestat: bgp-state received",
		"resource", resource,
		"timestamp", timestamp,
		"query_time", resp.Data.QueryTime,
		"routes", len(resp.Data.Routes),
	)
	return &resp.Data, nil
}

// get issues a GET for a data call and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, dataCall string, params url.Values) (io.ReadCloser, error) {
	u := c.baseURL.JoinPath(dataCall, "data.json")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.RequestDuration.WithLabelValues(dataCall).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RequestsTotal.WithLabelValues(dataCall, "error").Inc()
		return nil, fmt.Errorf("failed to fetch %s: %w", dataCall, err)
	}
	c.metrics.RequestsTotal.WithLabelValues(dataCall, strconv.Itoa(resp.StatusCode)).Inc()

	c.log.Debug("ripestat: request done", "url", u.String(), "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{DataCall: dataCall, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
