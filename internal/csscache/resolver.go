package csscache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailcss/internal/config"
	"mailcss/internal/inliner"
	"mailcss/internal/storage"
)

// Resolver serves http(s) stylesheets from the SQLite cache and refreshes
// them once they are older than the TTL. Local paths go straight to disk.
// When a refresh fails a stale cached copy is served.
type Resolver struct {
	db      *storage.DB
	client  *Client
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewResolver(db *storage.DB, cfg config.Config, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := time.Duration(cfg.CSSHTTPTimeoutMs) * time.Millisecond
	return &Resolver{
		db:      db,
		client:  NewClient(&http.Client{Timeout: timeout}, cfg.CSSRateLimitRPS, log),
		ttl:     time.Duration(cfg.CSSCacheTTLSec) * time.Second,
		log:     log.Named("css-cache"),
		now:     time.Now,
		timeout: timeout,
	}
}

// ResolveCSS implements inliner.CSSResolver.
func (r *Resolver) ResolveCSS(identifier string, c *inliner.Converter) (string, error) {
	if !strings.HasPrefix(identifier, "http://") && !strings.HasPrefix(identifier, "https://") {
		return c.FetchCSS(identifier)
	}

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout*maxAttempts)
		defer cancel()
	}
	return r.Get(ctx, identifier)
}

// Get returns the stylesheet behind url, using the cache when possible.
func (r *Resolver) Get(ctx context.Context, url string) (string, error) {
	cached, err := r.db.GetCSSCache(url)
	if err != nil {
		return "", fmt.Errorf("css cache lookup: %w", err)
	}

	if cached != nil {
		age, err := storage.CSSCacheAge(*cached, r.now())
		if err == nil && age < r.ttl {
			r.log.Debug("Serving cached stylesheet", zap.String("url", url), zap.Duration("age", age))
			return cached.Body, nil
		}
	}

	var etag *string
	if cached != nil {
		etag = cached.ETag
	}

	resp, err := r.client.Fetch(ctx, url, etag)
	if err != nil {
		if cached != nil {
			r.log.Warn("Stylesheet refresh failed, serving stale copy", zap.String("url", url), zap.Error(err))
			return cached.Body, nil
		}
		return "", err
	}

	if resp.NotModified && cached != nil {
		if err := r.db.TouchCSSCache(url); err != nil {
			return "", fmt.Errorf("css cache touch: %w", err)
		}
		r.log.Debug("Stylesheet not modified", zap.String("url", url))
		return cached.Body, nil
	}

	if err := r.db.PutCSSCache(url, resp.Body, resp.ETag, resp.ContentType); err != nil {
		return "", fmt.Errorf("css cache store: %w", err)
	}
	r.log.Debug("Stored stylesheet", zap.String("url", url), zap.Int("bytes", len(resp.Body)))
	return resp.Body, nil
}

// Purge drops entries older than the TTL.
func (r *Resolver) Purge() (int64, error) {
	return r.db.PurgeCSSCache(r.now().Add(-r.ttl))
}
