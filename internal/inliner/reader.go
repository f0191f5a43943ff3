package inliner

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// CSSResolver supplies the CSS text for a file identifier. Whatever it
// returns is used verbatim.
type CSSResolver interface {
	ResolveCSS(identifier string, c *Converter) (string, error)
}

// ResolverFunc adapts a function to CSSResolver.
type ResolverFunc func(identifier string, c *Converter) (string, error)

func (f ResolverFunc) ResolveCSS(identifier string, c *Converter) (string, error) {
	return f(identifier, c)
}

// InterceptCSSFile routes reads of path through r.
func (c *Converter) InterceptCSSFile(path string, r CSSResolver) *Converter {
	key := normalizeKey(path)
	if key == "" || r == nil {
		return c
	}
	c.resolvers[key] = r
	c.log.Debug("Registered CSS file interceptor", zap.String("file", key))
	return c
}

// InterceptCSSFiles routes reads without a path specific resolver through r.
func (c *Converter) InterceptCSSFiles(r CSSResolver) *Converter {
	c.wildcard = r
	c.log.Debug("Registered wildcard CSS file interceptor")
	return c
}

// ClearInterceptors removes every resolver.
func (c *Converter) ClearInterceptors() *Converter {
	c.resolvers = map[string]CSSResolver{}
	c.wildcard = nil
	c.log.Debug("Cleared CSS file interceptors")
	return c
}

// ReadCSS returns the CSS behind identifier, or "" when it cannot be read.
func (c *Converter) ReadCSS(identifier string) string {
	css, err := c.readCSS(identifier)
	if err != nil {
		c.log.Debug("Unable to read CSS source", zap.String("source", identifier), zap.Error(err))
	}
	return css
}

func (c *Converter) readCSS(identifier string) (string, error) {
	if r, ok := c.resolvers[normalizeKey(identifier)]; ok {
		return c.resolve(r, identifier)
	}
	if c.wildcard != nil {
		return c.resolve(c.wildcard, identifier)
	}
	return c.FetchCSS(identifier)
}

func (c *Converter) resolve(r CSSResolver, identifier string) (string, error) {
	css, err := r.ResolveCSS(identifier, c)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", identifier, err)
	}
	return css, nil
}

// FetchCSS reads identifier without consulting resolvers: http(s) URLs are
// fetched with GET, anything else is read from the filesystem. Resolvers
// call it to fall back to the default behaviour.
func (c *Converter) FetchCSS(identifier string) (string, error) {
	if isURL(identifier) {
		return c.fetchURL(identifier)
	}
	data, err := os.ReadFile(identifier)
	if err != nil {
		return "", fmt.Errorf("read css file: %w", err)
	}
	return string(data), nil
}

func (c *Converter) fetchURL(url string) (string, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch css %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read css %s: %w", url, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch css %s: http %d", url, resp.StatusCode)
	}
	return string(body), nil
}
