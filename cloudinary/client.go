// Package cloudinary is a small client for the Cloudinary Admin search API and
// its image delivery URLs. It implements catalog.Source and catalog.Previewer.
package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eringen/gallery/catalog"
	"github.com/eringen/gallery/placeholder"
)

const (
	DefaultAPIBase      = "https://api.cloudinary.com"
	DefaultDeliveryBase = "https://res.cloudinary.com"

	userAgent = "gallery-catalog/1.0"
)

var (
	// ErrMissingCloudName is returned by New when no cloud name is configured.
	ErrMissingCloudName = zerr.New("cloudinary: cloud name is required")

	// ErrMissingCredentials is returned by Search when the API key or secret is empty.
	ErrMissingCredentials = zerr.New("cloudinary: api key and secret are required for search")
)

// Config configures a Client.
type Config struct {
	CloudName    string
	APIKey       string
	APISecret    string
	APIBase      string
	DeliveryBase string

	Timeout      time.Duration // per request (default 30s)
	MaxAttempts  int           // total attempts per request, including the first (default 3)
	RetryWait    time.Duration // initial backoff (default 500ms)
	RetryMaxWait time.Duration // backoff ceiling (default 5s)
	PreviewRPS   float64       // preview requests per second, 0 = unlimited
}

func (c *Config) setDefaults() {
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.DeliveryBase == "" {
		c.DeliveryBase = DefaultDeliveryBase
	}
	c.APIBase = strings.TrimSuffix(c.APIBase, "/")
	c.DeliveryBase = strings.TrimSuffix(c.DeliveryBase, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 500 * time.Millisecond
	}
	if c.RetryMaxWait < c.RetryWait {
		c.RetryMaxWait = 10 * c.RetryWait
	}
}

// Client talks to one Cloudinary cloud.
type Client struct {
	cfg     Config
	resty   *resty.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a Client. Requests are retried with exponential backoff on
// transport errors, 429 and 5xx responses.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.CloudName == "" {
		return nil, ErrMissingCloudName
	}
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("cloudinary")

	// Pooled transport from retryablehttp; retries themselves are driven by resty.
	pooled := retryablehttp.NewClient()

	r := resty.New().
		SetTransport(pooled.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxAttempts-1).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(shouldRetry).
		SetHeader("User-Agent", userAgent).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetLogger(log.Sugar())

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.PreviewRPS > 0 {
		burst := int(cfg.PreviewRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PreviewRPS), burst)
	}

	return &Client{cfg: cfg, resty: r, limiter: limiter, log: log}, nil
}

// shouldRetry defers to retryablehttp's policy: connection errors, 429 and
// 5xx other than 501 are retried; context cancellation and TLS failures are not.
func shouldRetry(resp *resty.Response, err error) bool {
	ctx := context.Background()
	var raw *http.Response
	if resp != nil {
		raw = resp.RawResponse
		if resp.Request != nil {
			ctx = resp.Request.Context()
		}
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(ctx, raw, err)
	return retry
}

type searchRequest struct {
	Expression string              `json:"expression"`
	SortBy     []map[string]string `json:"sort_by,omitempty"`
	MaxResults int                 `json:"max_results,omitempty"`
}

type searchResponse struct {
	TotalCount int              `json:"total_count"`
	Resources  []catalog.Record `json:"resources"`
	NextCursor string           `json:"next_cursor"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Search runs q against the resources search endpoint.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}

	body := searchRequest{Expression: q.Expression, MaxResults: q.MaxResults}
	if q.SortField != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		body.SortBy = []map[string]string{{q.SortField: dir}}
	}

	var out searchResponse
	var apiErr errorBody
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret).
		SetPathParam("cloud", c.cfg.CloudName).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.cfg.APIBase + "/v1_1/{cloud}/resources/search")
	if err != nil {
		return nil, &RequestError{Op: "search", Err: err, attempts: attempts(resp)}
	}
	if resp.IsError() {
		return nil, &APIError{
			StatusCode: resp.StatusCode(),
			Message:    apiErr.Error.Message,
			attempts:   attempts(resp),
		}
	}

	c.log.Debug("search complete",
		zap.String("expression", q.Expression),
		zap.Int("resources", len(out.Resources)),
		zap.Int("total_count", out.TotalCount),
		zap.Int("attempts", attempts(resp)))
	return out.Resources, nil
}

// Preview downloads a tiny rendition of the image and encodes it as a data
// URL for use as a blur placeholder.
func (c *Client) Preview(ctx context.Context, publicID, format string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("preview %s: rate limit: %w", publicID, err)
	}
	resp, err := c.resty.R().
		SetContext(ctx).
		Get(c.PreviewURL(publicID, format))
	if err != nil {
		return "", &RequestError{Op: "preview " + publicID, Err: err, attempts: attempts(resp)}
	}
	if resp.IsError() {
		return "", &APIError{
			StatusCode: resp.StatusCode(),
			Message:    strings.TrimSpace(resp.Header().Get("X-Cld-Error")),
			attempts:   attempts(resp),
		}
	}
	data, err := placeholder.Encode(bytes.NewReader(resp.Body()), placeholder.DefaultWidth)
	if err != nil {
		return "", fmt.Errorf("preview %s: %w", publicID, err)
	}
	return data, nil
}

// ImageURL returns the delivery URL of the image scaled to width.
func (c *Client) ImageURL(width int, publicID, format string) string {
	return ImageURL(c.cfg.DeliveryBase, c.cfg.CloudName, fmt.Sprintf("c_scale,w_%d", width), publicID, format)
}

// PreviewURL returns the delivery URL of the low-resolution placeholder source.
func (c *Client) PreviewURL(publicID, format string) string {
	return ImageURL(c.cfg.DeliveryBase, c.cfg.CloudName,
		fmt.Sprintf("f_jpg,w_%d,q_70", placeholder.DefaultWidth), publicID, format)
}

// ImageURL builds a delivery URL: {base}/{cloud}/image/upload/{transform}/{public_id}.{format}.
func ImageURL(base, cloud, transform, publicID, format string) string {
	segs := strings.Split(publicID, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base, "/"))
	b.WriteString("/")
	b.WriteString(url.PathEscape(cloud))
	b.WriteString("/image/upload/")
	if transform != "" {
		b.WriteString(transform)
		b.WriteString("/")
	}
	b.WriteString(strings.Join(segs, "/"))
	if format != "" {
		b.WriteString(".")
		b.WriteString(format)
	}
	return b.String()
}

func attempts(resp *resty.Response) int {
	if resp == nil || resp.Request == nil {
		return 0
	}
	return resp.Request.Attempt
}
