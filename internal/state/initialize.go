package state

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"mailcss/internal/config"
	"mailcss/internal/csscache"
	"mailcss/internal/inliner"
	"mailcss/internal/storage"
)

// NewConverter builds a converter from INLINER_* settings. With
// CSS_CACHE_ENABLED and a database, remote stylesheets go through the cache.
func NewConverter(cfg config.Config, db *storage.DB, log *zap.Logger) *inliner.Converter {
	var opts []inliner.Option
	if cfg.CSSHTTPTimeoutMs > 0 {
		timeout := time.Duration(cfg.CSSHTTPTimeoutMs) * time.Millisecond
		opts = append(opts, inliner.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	conv := inliner.New(log, opts...)
	for _, s := range cfg.InlinerCSS {
		conv.AddCSS(s)
	}

	if cfg.InlinerExtractHTMLCSS {
		conv.EnableHTMLCSSExtraction()
	}
	if cfg.InlinerRemoveHTMLCSS {
		conv.EnableHTMLCSSRemoval()
	}
	if !cfg.InlinerEmailListener {
		conv.DisableEmailListener()
	}

	if cfg.CSSCacheEnabled && db != nil {
		conv.InterceptCSSFiles(csscache.NewResolver(db, cfg, log))
	}
	return conv
}

// Converter builds a converter for the current environment, opening the
// database only when the cache needs it.
func (e *LocalEnv) Converter() (*inliner.Converter, error) {
	var db *storage.DB
	if e.Cfg.CSSCacheEnabled {
		var err error
		if db, err = e.DB(); err != nil {
			return nil, err
		}
	}
	return NewConverter(e.Cfg, db, e.Log), nil
}
