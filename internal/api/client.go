// Package api is the HTTP client for the ideaboard notification service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nhle/ideaboard/internal/logging"
)

// Error is a non-2xx response from the service.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("api error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// Temporary reports whether repeating the request may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NotFound reports whether the target resource does not exist.
func (e *Error) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// IsAuthError reports whether err is a 401 or 403 from the service.
func IsAuthError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// errorResponse is the service's error body.
type errorResponse struct {
	Error string `json:"error"`
}

// Options tunes a Client.
type Options struct {
	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of retries on 429, 5xx and transport errors.
	MaxRetries int

	// RetryBaseDelay is the first backoff step when the response carries no
	// Retry-After header. Defaults to one second.
	RetryBaseDelay time.Duration

	// RequestsPerSecond caps the request rate. Zero disables the limiter.
	RequestsPerSecond float64

	Logger logrus.FieldLogger
}

// Client is a thin HTTP client for the notification REST API.
// It handles Bearer token authentication, JSON marshaling, client-side
// rate limiting and automatic retry with exponential backoff on HTTP 429,
// 5xx responses and transport errors.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

// NewClient creates a client for the service rooted at baseURL
// (e.g., http://localhost:8090). token is sent as a Bearer token.
func NewClient(baseURL, token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBaseDelay,
		limiter:    limiter,
		log:        opts.Logger.WithField("component", "api"),
	}
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting, retries with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	result any,
) error {
	url := c.baseURL + path

	var (
		payload []byte
		wait    time.Duration
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		requestID := uuid.NewString()
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		log := c.log.WithFields(logrus.Fields{
			"method":     method,
			"path":       path,
			"request_id": requestID,
			"attempt":    attempt,
		})

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("executing request %s %s: %w", method, path, err)
			wait = c.backoff(nil, attempt)
			log.WithError(err).Debug("api request failed")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			wait = c.backoff(nil, attempt)
			continue
		}
		log.WithField("status", resp.StatusCode).Debug("api request")

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &Error{StatusCode: resp.StatusCode, Method: method, Path: path}
			var errBody errorResponse
			if json.Unmarshal(respBody, &errBody) == nil && errBody.Error != "" {
				apiErr.Message = errBody.Error
			} else {
				apiErr.Message = strings.TrimSpace(string(respBody))
			}
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				apiErr.Message = fmt.Sprintf("authentication failed: check the API token for %s", c.baseURL)
			case http.StatusTooManyRequests:
				if apiErr.Message == "" {
					apiErr.Message = "rate limited"
				}
			}
			if !apiErr.Temporary() {
				return apiErr
			}
			lastErr = apiErr
			wait = c.backoff(resp, attempt)
			continue
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from %s %s: %w",
				method, path, err,
			)
		}

		return nil
	}

	return fmt.Errorf(
		"max retries (%d) exceeded: %w", c.maxRetries, lastErr,
	)
}

// backoff returns the wait before the retry following attempt. A
// Retry-After header on resp wins over the exponential schedule.
func (c *Client) backoff(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	// Exponential backoff: base, 2*base, 4*base, ...
	d := c.retryBase << uint(min(attempt, 16))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
