package inliner

import (
	"regexp"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var (
	styleElement = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style\s*>`)
	linkElement  = regexp.MustCompile(`(?is)<link\b[^>]*>`)
	tagAttribute = regexp.MustCompile(`(?s)([^\s"'<>/=]+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'<>]+)))?`)
)

// ExtractCSS collects CSS from <style> blocks and from stylesheet <link>
// elements of markup. Style blocks come first, then links, each in document
// order. When removal is enabled the matched elements are cut from the
// returned markup.
func (c *Converter) ExtractCSS(markup string) (string, string) {
	remaining, css, err := c.extract(markup)
	if err != nil {
		c.log.Debug("Some linked stylesheets could not be read", zap.Error(err))
	}
	return remaining, css
}

func (c *Converter) extract(markup string) (string, string, error) {
	var (
		pieces []string
		errs   error
	)

	markup = c.cut(markup, styleElement, func(m []string) bool {
		pieces = append(pieces, m[1])
		return true
	})

	markup = c.cut(markup, linkElement, func(m []string) bool {
		attrs := parseAttributes(m[0][len("<link"):])
		href := strings.TrimSpace(attrs["href"])
		if href == "" || !hasToken(attrs["rel"], "stylesheet") {
			return false
		}
		css, err := c.readCSS(href)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		pieces = append(pieces, css)
		return true
	})

	c.log.Debug("Extracted CSS from HTML", zap.Int("sources", len(pieces)), zap.Bool("removed", c.removeHTMLCSS))
	return markup, joinCSS(pieces...), errs
}

// cut runs re over markup and calls fn for every match. Matches accepted by
// fn are removed from the result when removal is enabled.
func (c *Converter) cut(markup string, re *regexp.Regexp, fn func(m []string) bool) string {
	matches := re.FindAllStringSubmatchIndex(markup, -1)
	if len(matches) == 0 {
		return markup
	}

	var (
		sb   strings.Builder
		last int
	)
	for _, loc := range matches {
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = markup[loc[2*i]:loc[2*i+1]]
			}
		}
		if !fn(m) || !c.removeHTMLCSS {
			continue
		}
		sb.WriteString(markup[last:loc[0]])
		last = loc[1]
	}
	if last == 0 {
		return markup
	}
	sb.WriteString(markup[last:])
	return sb.String()
}

// parseAttributes reads the attributes of a start tag body. Names are lower
// cased and values unescaped; the first occurrence of a name wins.
func parseAttributes(tag string) map[string]string {
	tag = strings.TrimSuffix(strings.TrimSuffix(tag, ">"), "/")
	attrs := map[string]string{}
	for _, m := range tagAttribute.FindAllStringSubmatch(tag, -1) {
		name := strings.ToLower(m[1])
		if _, ok := attrs[name]; ok {
			continue
		}
		attrs[name] = html.UnescapeString(m[2] + m[3] + m[4])
	}
	return attrs
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

// joinCSS joins non-blank CSS texts with a blank line.
func joinCSS(pieces ...string) string {
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
