package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coursebox/progression/internal/domain"
	"go.uber.org/zap"
)

// ClientConfig options for the platform API client
type ClientConfig struct {
	BaseURL string        // platform API root, eg. https://api.example.com/v1
	Timeout time.Duration // per request timeout
}

// Client thin JSON client over the platform backend. All repository adapters
// in this package share one instance
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// APIError non-2xx platform response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform responded %d: %s", e.StatusCode, e.Message)
}

// NewClient create a platform API client from given config
func NewClient(cfg *ClientConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid platform base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Get issue a GET request and decode the JSON response into out
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// GetRaw issue a GET request and return the body untouched, used where the
// response shape is not uniform and must be normalized by the caller
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issue a POST request with a JSON body, out may be nil
func (c *Client) Post(ctx context.Context, path string, payload, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	body, err := c.do(ctx, http.MethodPost, path, reader)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}
	endpoint := c.base.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer res.Body.Close()

	payload, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	c.logger.Debug("Platform call",
		zap.String("http.request.method", method),
		zap.String("url.path", path),
		zap.Int("http.response.status_code", res.StatusCode),
		zap.Duration("event.duration", time.Since(started)),
	)

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return payload, nil
	}
	return nil, mapStatusError(res.StatusCode, payload)
}

func mapStatusError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrForbidden, apiErr.Message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		// the upstream message is surfaced verbatim
		return fmt.Errorf("%w: %s", domain.ErrValidation, apiErr.Message)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, apiErr.Message)
	}
	return apiErr
}
