// Package customsearch implements the custom-search provider client
// (provider B).
package customsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/serp"
)

// The provider caps a single page at 10 items.
const maxPageSize = 10

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (c *Client) Search(ctx context.Context, req serp.Request) (*serp.Response, error) {
	reqURL := c.buildURL(req)

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serp.ErrInvalidRequest, err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	elapsed := time.Since(start)

	var custom serp.CustomResponse
	if err := json.Unmarshal(body, &custom); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp.StatusCode, "")
		}
		return nil, fmt.Errorf("%w: %v", serp.ErrMalformedResponse, err)
	}

	if custom.Error != nil {
		return nil, apiError(custom.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, "")
	}

	c.logger.Debug("custom search response",
		zap.String("keyword", req.Keyword),
		zap.Int("items", len(custom.Items)),
		zap.Duration("took", elapsed),
	)

	return &serp.Response{
		Custom:   &custom,
		Raw:      body,
		Duration: elapsed,
	}, nil
}

func (c *Client) buildURL(req serp.Request) string {
	opts := req.Options

	query := req.Keyword
	if opts.City != "" {
		query += " " + opts.City
		if opts.State != "" {
			query += " " + opts.State
		}
	}

	num := opts.MaxResults
	if num > maxPageSize {
		num = maxPageSize
	}

	q := url.Values{}
	q.Set("key", req.Secret)
	q.Set("cx", req.SearchEngineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	q.Set("gl", strings.ToLower(opts.Country))
	q.Set("hl", opts.Language)
	q.Set("safe", "off")

	return c.baseURL + "?" + q.Encode()
}

func statusError(status int, msg string) error {
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: status 400: %s", serp.ErrInvalidRequest, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", serp.ErrUnauthorized, status)
	case http.StatusTooManyRequests:
		return serp.ErrRateLimited
	default:
		if status >= 500 {
			return fmt.Errorf("%w: status %d", serp.ErrServerUnavailable, status)
		}
		return fmt.Errorf("%w: status %d: %s", serp.ErrInvalidRequest, status, msg)
	}
}

func apiError(e *serp.CustomError) error {
	m := strings.ToLower(e.Message)
	switch {
	case e.Code == http.StatusTooManyRequests, strings.Contains(m, "rate limit"):
		return fmt.Errorf("%w: %s", serp.ErrRateLimited, e.Message)
	case strings.Contains(m, "quota"), strings.Contains(m, "limit"), strings.Contains(m, "exceeded"):
		return fmt.Errorf("%w: %s", serp.ErrQuotaExceeded, e.Message)
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", serp.ErrUnauthorized, e.Message)
	case e.Code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", serp.ErrInvalidRequest, e.Message)
	default:
		return fmt.Errorf("%w: %d %s", serp.ErrInvalidRequest, e.Code, e.Message)
	}
}
