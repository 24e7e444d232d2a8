package passive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bl4ck0w1/otxsubs/pkg/models"
)

const maxBodyBytes = 64 << 20

var (
	ErrRateLimited = errors.New("rate limited")
	ErrHTTPStatus  = errors.New("unexpected http status")
	ErrDecode      = errors.New("decode response")
)

// StatusError carries a non-2xx response. A 429 matches ErrRateLimited,
// every other code matches ErrHTTPStatus.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
	HasRetry   bool
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("otx: status %d", e.Code)
	}
	return fmt.Sprintf("otx: status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case ErrHTTPStatus:
		return e.Code != http.StatusTooManyRequests
	}
	return false
}

type Record struct {
	Hostname   string `json:"hostname"`
	Address    string `json:"address"`
	RecordType string `json:"record_type"`
	First      string `json:"first"`
	Last       string `json:"last"`
}

type Response struct {
	PassiveDNS []Record `json:"passive_dns"`
	Count      int      `json:"count"`
}

type OTXClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	apiKey     string
	logger     *logrus.Logger
}

func NewOTXClient(cfg models.OTXConfig, logger *logrus.Logger) *OTXClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = models.DefaultOTXBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = models.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = models.DefaultOTXTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &OTXClient{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// WithHTTPClient swaps the underlying client, keeping the configured timeout
// when the replacement has none.
func (c *OTXClient) WithHTTPClient(h *http.Client) *OTXClient {
	if h == nil {
		return c
	}
	if h.Timeout == 0 {
		h.Timeout = c.httpClient.Timeout
	}
	c.httpClient = h
	return c
}

func (c *OTXClient) Endpoint(domain string) string {
	return fmt.Sprintf("%s/api/v1/indicators/hostname/%s/passive_dns", c.baseURL, url.PathEscape(domain))
}

func (c *OTXClient) Query(ctx context.Context, domain string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("otx: wait for limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("otx: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-OTX-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("otx: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		if resp.StatusCode == http.StatusTooManyRequests {
			se.RetryAfter, se.HasRetry = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return nil, se
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("otx: read body: %w", err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	c.logger.WithFields(logrus.Fields{
		"domain":  domain,
		"records": len(out.PassiveDNS),
	}).Debug("otx response decoded")
	return &out, nil
}

// ParseRetryAfter accepts delta-seconds or an HTTP date. Dates in the past
// yield a zero wait.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
