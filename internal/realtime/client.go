package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/logging"
)

// StatusError is returned when a feed answers with anything but 200.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gtfs-rt fetch failed: %s returned %s", e.URL, e.Status)
}

// Client downloads raw feed bodies. It never decodes protobuf; that is left
// to the feed package.
type Client struct {
	http       *http.Client
	token      string
	tokenParam string
	accept     string
	headers    map[string]string
	maxBody    int64
	logger     *slog.Logger
}

// newHTTPClient clones http.DefaultTransport so proxy, dial and HTTP/2
// defaults are kept. Compression is handled by Fetch, not the transport.
func newHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second
	transport.DisableCompression = true

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func NewClient(cfg appconf.FeedConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = appconf.DefaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = appconf.DefaultMaxBodyBytes
	}
	tokenParam := cfg.TokenParam
	if tokenParam == "" {
		tokenParam = appconf.DefaultTokenParam
	}
	return &Client{
		http:       newHTTPClient(timeout),
		token:      cfg.APIToken,
		tokenParam: tokenParam,
		accept:     "application/x-protobuf",
		headers:    cfg.Headers,
		maxBody:    maxBody,
		logger:     logger.With(slog.String("component", "gtfs_realtime_downloader")),
	}
}

// WithAccept returns a copy of c that asks for mime instead of protobuf.
func (c *Client) WithAccept(mime string) *Client {
	clone := *c
	clone.accept = mime
	return &clone
}

// Fetch downloads source and returns the (decompressed) body. The API token,
// when configured, is added as a query parameter.
func (c *Client) Fetch(ctx context.Context, source string) ([]byte, error) {
	target, err := c.withToken(source)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", c.accept)
	req.Header.Set("Accept-Encoding", "gzip")
	for key, value := range c.headers {
		req.Header.Add(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute GTFS-RT request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		// The token is never part of the reported URL.
		return nil, &StatusError{URL: source, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer logging.SafeCloseWithLogging(zr, c.logger, "gzip_reader")
		body = zr
	}

	data, err := io.ReadAll(io.LimitReader(body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("GTFS-RT response exceeds size limit of %d bytes", c.maxBody)
	}
	return data, nil
}

func (c *Client) withToken(source string) (string, error) {
	if c.token == "" {
		return source, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}
	q := u.Query()
	q.Set(c.tokenParam, c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
