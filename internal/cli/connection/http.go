package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
	"github.com/yndnr/uacore-go/internal/infra/tlsroots"
)

// HeaderRequestID matches the header the server echoes back.
const HeaderRequestID = "X-Request-ID"

// Options configures an HTTPClient.
type Options struct {
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
	// CAFile is a PEM bundle trusted for HTTPS servers. Setting it or
	// Insecure makes a scheme-less server address default to https.
	CAFile string
	// Insecure skips server certificate verification.
	Insecure bool
}

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// unixScheme selects the server's local admin socket.
const unixScheme = "unix://"

// NewHTTPClient creates a client for server, given as host:port, an http(s)
// URL or unix:///path/to/socket.
func NewHTTPClient(server string, opts Options) (*HTTPClient, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if socket, ok := strings.CutPrefix(server, unixScheme); ok {
		if socket == "" {
			return nil, fmt.Errorf("empty socket path in %q", server)
		}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		return &HTTPClient{
			baseURL:   "http://unix",
			client:    &http.Client{Timeout: timeout, Transport: transport},
			userAgent: "uacore-cli/" + buildinfo.Version,
		}, nil
	}

	secure := opts.CAFile != "" || opts.Insecure
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if secure {
			baseURL = "https://" + baseURL
		} else {
			baseURL = "http://" + baseURL
		}
	}

	if secure {
		tlsCfg := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.Insecure,
		}
		if opts.CAFile != "" {
			pool, err := tlsroots.LoadPool(opts.CAFile)
			if err != nil {
				return nil, fmt.Errorf("load CA file: %w", err)
			}
			tlsCfg.RootCAs = pool.Pool()
		}
		transport.TLSClientConfig = tlsCfg
	}

	return &HTTPClient{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout, Transport: transport},
		userAgent: "uacore-cli/" + buildinfo.Version,
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with an optional JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, ulid.Make().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// Call performs a request and decodes the data member of the response
// envelope into target, which may be nil.
func (c *HTTPClient) Call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return ParseResponse(resp, target)
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// envelope mirrors the server's response envelope.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   json.RawMessage `json:"details"`
}

// APIError is an error response from the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Details   json.RawMessage
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Details) > 0 && string(e.Details) != "null" {
		fmt.Fprintf(&b, ": %s", e.Details)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request %s)", e.RequestID)
	}
	return b.String()
}

// ParseResponse unwraps the response envelope and closes the body. Error
// statuses become *APIError.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && env.Code != "" {
			return &APIError{
				Status:    resp.StatusCode,
				Code:      env.Code,
				Message:   env.Message,
				RequestID: env.RequestID,
				Details:   env.Details,
			}
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
