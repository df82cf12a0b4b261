package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/retry"
	"golang.org/x/time/rate"
)

const maxBodySize = 64 << 20

// Options configures the live HTTP collector.
type Options struct {
	CatalogURL  string
	ListingURL  string
	KeywordsURL string
	UserAgent   string
	Timeout     time.Duration
	// Interval is the minimum spacing between requests to the same upstream.
	Interval time.Duration
	Retry    retry.Config
}

// HTTPCollector talks to the catalog, listing and keyword statistics
// endpoints over plain JSON HTTP.
type HTTPCollector struct {
	httpClient     *http.Client
	listingLimiter *rate.Limiter
	keywordLimiter *rate.Limiter
	opts           Options
}

// NewHTTPCollector builds a live collector. A zero Interval disables pacing.
func NewHTTPCollector(opts Options) *HTTPCollector {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	return &HTTPCollector{
		httpClient:     &http.Client{Timeout: opts.Timeout},
		listingLimiter: rate.NewLimiter(limit, 1),
		keywordLimiter: rate.NewLimiter(limit, 1),
		opts:           opts,
	}
}

func (hc *HTTPCollector) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return hc.do(req, v)
}

func (hc *HTTPCollector) postJSON(ctx context.Context, url string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return hc.do(req, v)
}

// do executes req and decodes a 2xx JSON body into v. 429 maps to
// domain.ErrRateLimited, other failures to NetworkError or FormatError.
func (hc *HTTPCollector) do(req *http.Request, v any) error {
	op := req.Method
	url := req.URL.String()

	req.Header.Set("Accept", "application/json")
	if hc.opts.UserAgent != "" {
		req.Header.Set("User-Agent", hc.opts.UserAgent)
	}

	resp, err := hc.httpClient.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", op, url, domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &domain.NetworkError{Op: op, URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &domain.NetworkError{Op: op, URL: url, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &domain.FormatError{Op: op + " " + url, Err: err}
	}
	return nil
}
