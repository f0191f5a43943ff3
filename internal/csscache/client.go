package csscache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxAttempts = 5

// Response is the outcome of one conditional fetch.
type Response struct {
	Body        string
	ETag        *string
	ContentType *string
	NotModified bool
}

// Client fetches stylesheets with rate limiting and retries on throttling
// and server errors.
type Client struct {
	log        *zap.Logger
	httpClient *http.Client
	limiter    *RateLimiter
	sleep      func(context.Context, time.Duration) error
}

func NewClient(httpClient *http.Client, rps int, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:        log.Named("css-client"),
		httpClient: httpClient,
		limiter:    NewRateLimiter(rps),
		sleep:      sleepContext,
	}
}

// Fetch GETs url. With etag set the request is conditional and a 304 answer
// is reported through Response.NotModified.
func (c *Client) Fetch(ctx context.Context, url string, etag *string) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Response{}, err
		}
		req.Header.Set("Accept", "text/css,*/*;q=0.1")
		if etag != nil && *etag != "" {
			req.Header.Set("If-None-Match", *etag)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotModified {
			return Response{NotModified: true, ETag: etag}, nil
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := retryAfter(resp.Header.Get("Retry-After"))
				if backoff == 0 {
					backoff = time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				}
				c.log.Debug("Retrying stylesheet fetch",
					zap.String("url", url),
					zap.Int("status", resp.StatusCode),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", backoff))
				if err := c.sleep(ctx, backoff); err != nil {
					return Response{}, err
				}
				lastErr = fmt.Errorf("stylesheet status %d", resp.StatusCode)
				continue
			}
			return Response{}, fmt.Errorf("stylesheet fetch failed: status=%d body=%s", resp.StatusCode, snippet(body))
		}

		return Response{
			Body:        string(body),
			ETag:        headerPtr(resp.Header, "ETag"),
			ContentType: headerPtr(resp.Header, "Content-Type"),
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("stylesheet request failed")
	}
	return Response{}, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// retryAfter understands the delay-seconds form of Retry-After.
func retryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func headerPtr(h http.Header, key string) *string {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return nil
	}
	return &v
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
