// Package nativeserp implements the native-SERP provider client (provider A).
package nativeserp

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
		cfg.BaseURL = "https://serpapi.com"
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

	usage := harvestUsage(resp.Header)

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", serp.ErrInvalidRequest, errorText(body))
	case http.StatusUnauthorized, http.StatusForbidden:
		if kindIsQuota(errorText(body)) {
			return nil, fmt.Errorf("%w: %s", serp.ErrQuotaExceeded, errorText(body))
		}
		return nil, fmt.Errorf("%w: status %d", serp.ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, serp.ErrRateLimited
	default:
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", serp.ErrServerUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", serp.ErrInvalidRequest, resp.StatusCode, errorText(body))
	}

	var native serp.NativeResponse
	if err := json.Unmarshal(body, &native); err != nil {
		return nil, fmt.Errorf("%w: %v", serp.ErrMalformedResponse, err)
	}
	if native.Error != "" {
		return nil, classifyBodyError(native.Error)
	}
	if native.SearchInformation == nil {
		return nil, fmt.Errorf("%w: missing search_information", serp.ErrMalformedResponse)
	}

	c.logger.Debug("native serp response",
		zap.String("keyword", req.Keyword),
		zap.Int("organic", len(native.OrganicResults)),
		zap.Duration("took", elapsed),
	)

	return &serp.Response{
		Native:   &native,
		Raw:      body,
		Usage:    usage,
		Duration: elapsed,
	}, nil
}

func (c *Client) buildURL(req serp.Request) string {
	opts := req.Options

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("api_key", req.Secret)
	q.Set("q", req.Keyword)
	q.Set("gl", strings.ToLower(opts.Country))
	q.Set("hl", opts.Language)
	q.Set("num", strconv.Itoa(opts.MaxResults))
	q.Set("start", "0")
	q.Set("device", string(opts.Device))
	q.Set("safe", "off")
	q.Set("filter", "0")
	q.Set("no_cache", "true")

	if loc := buildLocation(opts.City, opts.State, opts.Country, opts.PostalCode); loc != "" {
		q.Set("location", loc)
	}

	for k, v := range opts.Extra {
		q.Set(k, v)
	}

	return c.baseURL + "/search?" + q.Encode()
}

// buildLocation assembles "City,State,Country Name" the way the provider
// expects. All parts empty → "" (global keyword-only search).
func buildLocation(city, state, country, postal string) string {
	var parts []string
	if city != "" {
		parts = append(parts, city)
	}
	if state != "" {
		parts = append(parts, state)
	}
	if len(parts) > 0 && country != "" {
		parts = append(parts, CountryName(country))
	}
	loc := strings.Join(parts, ",")
	if postal != "" && loc != "" {
		loc += " " + postal
	}
	return loc
}

func errorText(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func kindIsQuota(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "quota") || strings.Contains(m, "limit") ||
		strings.Contains(m, "exceeded") || strings.Contains(m, "used up")
}

func classifyBodyError(msg string) error {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "rate limit"), strings.Contains(m, "too many"):
		return fmt.Errorf("%w: %s", serp.ErrRateLimited, msg)
	case kindIsQuota(m):
		return fmt.Errorf("%w: %s", serp.ErrQuotaExceeded, msg)
	case strings.Contains(m, "invalid api key"), strings.Contains(m, "unauthorized"):
		return fmt.Errorf("%w: %s", serp.ErrUnauthorized, msg)
	default:
		return fmt.Errorf("%w: %s", serp.ErrInvalidRequest, msg)
	}
}

// harvestUsage reads optional account-usage headers: either a combined
// "x-api-usage: used/limit" or the used/remaining/monthly-limit triplet.
func harvestUsage(h http.Header) *serp.AccountUsage {
	if v := h.Get("x-api-usage"); v != "" {
		parts := strings.SplitN(v, "/", 2)
		if len(parts) == 2 {
			used, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			limit, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 == nil && err2 == nil {
				return &serp.AccountUsage{Used: used, Remaining: limit - used, MonthlyLimit: limit}
			}
		}
	}

	used, okUsed := headerInt(h, "x-searches-used", "x-search-count")
	remaining, okRem := headerInt(h, "x-searches-remaining", "x-searches-left")
	limit, okLimit := headerInt(h, "x-monthly-limit", "x-searches-limit")
	if !okUsed && !okRem && !okLimit {
		return nil
	}

	u := &serp.AccountUsage{Used: used, Remaining: remaining, MonthlyLimit: limit}
	if !okRem && okLimit {
		u.Remaining = limit - used
	}
	return u
}

func headerInt(h http.Header, names ...string) (int, bool) {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
