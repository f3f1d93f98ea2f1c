package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kwv/slamview/internal/logger"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for asset fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per asset.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits the response body to 50 MB to prevent OOM.
	maxResponseBytes = 50 << 20
)

// FetchOption configures an HTTPSource.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// HTTPSource fetches map assets relative to a base URL. Transient failures
// are retried with exponential backoff; a 404 is reported at once as
// AssetNotFoundError.
type HTTPSource struct {
	base   *url.URL
	cfg    fetchConfig
	client *http.Client
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string, opts ...FetchOption) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("http source: base URL is empty")
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	return &HTTPSource{base: base, cfg: cfg, client: client}, nil
}

// String returns the base URL.
func (s *HTTPSource) String() string {
	return s.base.String()
}

// Fetch downloads one asset.
func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	ref, err := url.Parse(strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	target := s.base.ResolveReference(ref).String()

	var lastErr error
	for attempt := range s.cfg.maxRetries {
		if attempt > 0 {
			backoff := s.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch %s: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doFetch(ctx, s.client, target)
		if err == nil {
			return body, nil
		}

		var status *httpStatusError
		if errors.As(err, &status) && status.code == http.StatusNotFound {
			return nil, &AssetNotFoundError{Name: name}
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, ctx.Err())
		}
		logger.Sugar.Debugf("[LOADER] fetch %s attempt %d failed: %v", target, attempt+1, err)
		lastErr = err
	}

	return nil, fmt.Errorf("fetch %s: all %d attempts failed: %w", name, s.cfg.maxRetries, lastErr)
}

type httpStatusError struct {
	url  string
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.code)
}

// doFetch performs a single HTTP GET and returns the response body bytes.
func doFetch(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{url: target, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}

	return body, nil
}
