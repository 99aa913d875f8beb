package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultRateLimit is requests per second
	DefaultRateLimit = 4
	// maxImageBytes caps a single download
	maxImageBytes = 16 << 20
)

// Fetcher resolves media references to inline data URIs. Fetches are
// best-effort: callers drop a failed ref and keep going.
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ImageFetcher = (*Fetcher)(nil)

// FetcherOption configures the Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = httpClient
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) FetcherOption {
	return func(f *Fetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a new image fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads the reference and returns it as a data URI.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read image body: %w", err)
	}

	mime := mimeTypeFor(ref, resp.Header.Get("Content-Type"))
	encoded := base64.StdEncoding.EncodeToString(data)

	if f.logger != nil {
		f.logger.Debug().Str("ref", ref).Int("bytes", len(data)).Msg("Image inlined")
	}

	return fmt.Sprintf("data:%s;base64,%s", mime, encoded), nil
}

// mimeTypeFor prefers the platform's format query parameter, then the
// response content type, then jpeg.
func mimeTypeFor(ref, contentType string) string {
	switch {
	case strings.Contains(ref, "format=png"):
		return "image/png"
	case strings.Contains(ref, "format=jpg"), strings.Contains(ref, "format=jpeg"):
		return "image/jpeg"
	case strings.Contains(ref, "format=webp"):
		return "image/webp"
	}
	if contentType != "" && strings.HasPrefix(contentType, "image/") {
		return strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return "image/jpeg"
}
