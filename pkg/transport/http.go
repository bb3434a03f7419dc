package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-formengine/pkg/submit"
)

// ErrStatus is returned when the server replies with a non-2xx status and a
// body that is not a Response.
var ErrStatus = errors.New("transport: unexpected status")

// Default endpoint paths, relative to the base URL.
const (
	SubmitPath = "/submit"
	TermsPath  = "/terms"
	FilesPath  = "/files"
)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient swaps the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.timeout = timeout
	}
}

// WithHeader adds a header to every request.
func WithHeader(name, value string) Option {
	return func(c *HTTPClient) {
		if strings.TrimSpace(name) != "" {
			c.headers.Set(name, value)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// HTTPClient talks to the form backend. Identical concurrent term searches
// share one request.
type HTTPClient struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	headers http.Header
	logger  *zap.Logger
	group   singleflight.Group
}

// NewHTTPClient builds a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("transport: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(trimmed, "/"))
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	c := &HTTPClient{
		base:    base,
		client:  http.DefaultClient,
		headers: make(http.Header),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Submit encodes req as multipart and posts it. A failed submission still
// returns the decoded Response when the server sent one.
func (c *HTTPClient) Submit(ctx context.Context, req *submit.Request) (Response, error) {
	if req == nil {
		return Response{}, errors.New("transport: request is nil")
	}
	var body bytes.Buffer
	contentType, err := req.Encode(&body)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	status, err := c.do(ctx, http.MethodPost, c.endpoint(SubmitPath, nil), contentType, &body, &resp)
	if err != nil {
		return resp, err
	}
	c.logger.Debug("form submitted",
		zap.Int("status", status),
		zap.Bool("success", resp.Success),
		zap.Int("parts", len(req.Parts)),
	)
	return resp, nil
}

// SearchTerms pages through remote terms of a taxonomy.
func (c *HTTPClient) SearchTerms(ctx context.Context, taxonomy, query string, page int) (TermPage, error) {
	q := url.Values{}
	q.Set("taxonomy", taxonomy)
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))
	target := c.endpoint(TermsPath, q)

	v, err, shared := c.group.Do(target, func() (any, error) {
		var out TermPage
		_, err := c.do(ctx, http.MethodGet, target, "", nil, &out)
		return out, err
	})
	if shared {
		c.logger.Debug("term search shared", zap.String("url", target))
	}
	if err != nil {
		return TermPage{}, err
	}
	return v.(TermPage), nil
}

// ListFiles pages through persisted attachments, most recent first.
func (c *HTTPClient) ListFiles(ctx context.Context, page int) (FilePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	var out FilePage
	if _, err := c.do(ctx, http.MethodGet, c.endpoint(FilesPath, q), "", nil, &out); err != nil {
		return FilePage{}, err
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, target, contentType string, body io.Reader, out any) (int, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("transport: request: %w", err)
	}
	for name, values := range c.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("transport: %s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("transport: read body: %w", err)
	}
	decodeErr := json.Unmarshal(data, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("%w %s", ErrStatus, resp.Status)
	}
	if decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("transport: decode: %w", decodeErr)
	}
	return resp.StatusCode, nil
}
