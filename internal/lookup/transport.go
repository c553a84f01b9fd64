package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// Transport performs a single GET. Non-2xx responses return their status code and
// body with a nil error; err is reserved for network failures. Implementations must
// abort when ctx is canceled.
type Transport interface {
	Fetch(ctx context.Context, url string) (body []byte, statusCode int, err error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) ([]byte, int, error)

func (f TransportFunc) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	return f(ctx, url)
}

// HTTPTransportConfig holds configuration for creating an HTTPTransport.
type HTTPTransportConfig struct {
	UserAgent string        // Required by MusicBrainz: "app/version ( contact )"
	Accept    string        // Optional: defaults to application/json
	Timeout   time.Duration // Optional: HTTP client timeout, defaults to 30s
}

// HTTPTransport fetches over net/http.
type HTTPTransport struct {
	httpClient *http.Client
	userAgent  string
	accept     string
}

// NewHTTPTransport creates a transport from cfg.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	accept := cfg.Accept
	if accept == "" {
		accept = "application/json"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		accept:     accept,
	}
}

func (t *HTTPTransport) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("Accept", t.accept)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
