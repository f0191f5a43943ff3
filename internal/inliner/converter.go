package inliner

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailcss/internal/inline"
)

const defaultHTTPTimeout = 15 * time.Second

// Converter holds CSS sources, flags, resolvers and conversion handlers.
// A Converter is not safe for concurrent mutation; independent converters
// do not share state.
type Converter struct {
	id     string
	log    *zap.Logger
	engine *inline.Engine
	client *http.Client

	files   []string
	fileSet map[string]struct{}
	raw     []string

	extractHTMLCSS bool
	removeHTMLCSS  bool
	emailListener  bool

	resolvers map[string]CSSResolver
	wildcard  CSSResolver

	beforeHTML  []HTMLHandler
	afterHTML   []HTMLHandler
	beforeEmail []EmailHandler
	afterEmail  []EmailHandler

	halted bool
	inPre  bool
}

// Option configures a Converter.
type Option func(*Converter)

// WithHTTPClient sets the client used to fetch http(s) CSS sources.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Converter) {
		if client != nil {
			c.client = client
		}
	}
}

// WithEngine replaces the inlining engine.
func WithEngine(engine *inline.Engine) Option {
	return func(c *Converter) {
		if engine != nil {
			c.engine = engine
		}
	}
}

// New creates a converter with extraction and removal disabled and the email
// listener enabled.
func New(log *zap.Logger, opts ...Option) *Converter {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	c := &Converter{
		id:            id,
		log:           log.Named("inliner").With(zap.String("instance", id)),
		engine:        inline.New(log),
		client:        &http.Client{Timeout: defaultHTTPTimeout},
		fileSet:       map[string]struct{}{},
		emailListener: true,
		resolvers:     map[string]CSSResolver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID identifies the converter in log entries.
func (c *Converter) ID() string { return c.id }

// Debug writes a debug entry tagged with the converter ID. Handlers use it to
// leave a trace in the conversion log.
func (c *Converter) Debug(msg string, fields ...zap.Field) {
	c.log.Debug(msg, fields...)
}

// Add registers a classified source.
func (c *Converter) Add(src StyleSource) *Converter {
	switch src.Kind {
	case FilePath:
		return c.AddCSSFile(src.Value)
	case RawText:
		return c.AddCSSRaw(src.Value)
	}
	return c
}

// AddCSSFile registers a local path or an http(s) URL. Registering the same
// file twice keeps the first position.
func (c *Converter) AddCSSFile(path string) *Converter {
	key := normalizeKey(path)
	if key == "" {
		return c
	}
	if _, ok := c.fileSet[key]; ok {
		c.log.Debug("CSS file already registered", zap.String("file", key))
		return c
	}
	c.fileSet[key] = struct{}{}
	c.files = append(c.files, key)
	c.log.Debug("Registered new CSS file", zap.String("file", key))
	return c
}

// AddCSSRaw registers CSS text.
func (c *Converter) AddCSSRaw(css string) *Converter {
	c.raw = append(c.raw, css)
	c.log.Debug("Registered new raw CSS", zap.Int("bytes", len(css)))
	return c
}

// AddCSS classifies s and registers it as a file or as raw CSS.
func (c *Converter) AddCSS(s string) *Converter {
	src, fallback := classify(s)
	if fallback {
		c.log.Debug("Ambiguous CSS source treated as raw CSS", zap.String("source", truncate(s, 80)))
	}
	return c.Add(src)
}

// ClearCSS removes all file and raw sources.
func (c *Converter) ClearCSS() *Converter {
	c.files = nil
	c.fileSet = map[string]struct{}{}
	c.raw = nil
	c.log.Debug("Cleared CSS sources")
	return c
}

// CSSFiles returns registered file keys in insertion order.
func (c *Converter) CSSFiles() []string { return slices.Clone(c.files) }

// CSSRaw returns registered raw CSS in insertion order.
func (c *Converter) CSSRaw() []string { return slices.Clone(c.raw) }

func (c *Converter) EnableHTMLCSSExtraction() *Converter {
	c.extractHTMLCSS = true
	return c
}

func (c *Converter) DisableHTMLCSSExtraction() *Converter {
	c.extractHTMLCSS = false
	return c
}

func (c *Converter) HTMLCSSExtractionEnabled() bool { return c.extractHTMLCSS }

func (c *Converter) EnableHTMLCSSRemoval() *Converter {
	c.removeHTMLCSS = true
	return c
}

func (c *Converter) DisableHTMLCSSRemoval() *Converter {
	c.removeHTMLCSS = false
	return c
}

func (c *Converter) HTMLCSSRemovalEnabled() bool { return c.removeHTMLCSS }

func (c *Converter) EnableEmailListener() *Converter {
	c.emailListener = true
	return c
}

func (c *Converter) DisableEmailListener() *Converter {
	c.emailListener = false
	return c
}

func (c *Converter) EmailListenerEnabled() bool { return c.emailListener }

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
