package inline

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mailcss/internal/css"
)

var (
	fullDocument = regexp.MustCompile(`(?i)<(?:html|head|body)[\s>/]|<!doctype`)
	htmlTag      = regexp.MustCompile(`(?i)<html[\s>/]`)
	headTag      = regexp.MustCompile(`(?i)<head[\s>/]`)
	bodyTag      = regexp.MustCompile(`(?i)<body[\s>/]`)
	firstTag     = regexp.MustCompile(`^\s*(?:<!--.*?-->\s*)*<([a-zA-Z][a-zA-Z0-9]*)`)
)

// fragmentContext maps the leading tag of a partial to the element it must
// be parsed in; table parts are dropped by the parser anywhere else.
var fragmentContext = map[string]atom.Atom{
	"tr":       atom.Tbody,
	"td":       atom.Tr,
	"th":       atom.Tr,
	"thead":    atom.Table,
	"tbody":    atom.Table,
	"tfoot":    atom.Table,
	"caption":  atom.Table,
	"colgroup": atom.Table,
	"col":      atom.Colgroup,
}

// shape records which document wrappers were written in the markup, so the
// parser's implied ones are not rendered.
type shape struct {
	full bool
	html bool
	head bool
	body bool
}

// implied reports whether n is a wrapper the parser added on its own.
func (sh shape) implied(n *html.Node) bool {
	if !sh.full || n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Html:
		return !sh.html
	case atom.Head:
		return !sh.head
	case atom.Body:
		return !sh.body
	}
	return false
}

// elements whose style attribute is never rendered
var skipElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Title:    true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Style:    true,
	atom.Script:   true,
	atom.Base:     true,
	atom.Noscript: true,
	atom.Template: true,
}

// Stats describes one inlining pass.
type Stats struct {
	Rules    int
	Elements int
	Matched  int
	Changed  int
}

// Engine writes stylesheet declarations into style attributes of matching
// elements.
type Engine struct {
	log    *zap.Logger
	parser *css.Parser
}

// New creates an inlining engine.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:    log.Named("inline"),
		parser: css.NewParser(log),
	}
}

// Inline parses cssText and applies it to markup. Markup is returned unchanged
// (byte for byte) when it is blank, when there are no usable rules or when no
// element ends up with a different style attribute.
func (e *Engine) Inline(markup, cssText string) string {
	if strings.TrimSpace(markup) == "" {
		return markup
	}
	sheet := e.parser.Parse([]byte(cssText))
	if sheet.Empty() {
		e.log.Debug("No applicable CSS rules", zap.Int("warnings", len(sheet.Warnings)))
		return markup
	}

	out, stats, err := e.Apply(markup, sheet)
	if err != nil {
		e.log.Warn("Unable to inline CSS, keeping markup as is", zap.Error(err))
		return markup
	}
	e.log.Debug("Inlined CSS",
		zap.Int("rules", stats.Rules),
		zap.Int("elements", stats.Elements),
		zap.Int("matched", stats.Matched),
		zap.Int("changed", stats.Changed))

	if stats.Changed == 0 {
		return markup
	}
	return out
}

// Apply writes the stylesheet into markup and returns the rendered result.
// The result is re-rendered even when nothing changed; callers that need
// byte identity should check Stats.Changed.
func (e *Engine) Apply(markup string, sheet *css.Stylesheet) (string, Stats, error) {
	stats := Stats{Rules: len(sheet.Rules)}

	root, sh, err := parseMarkup(markup)
	if err != nil {
		return "", stats, err
	}

	goquery.NewDocumentFromNode(root).Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if skipElements[n.DataAtom] || sh.implied(n) {
			return
		}
		stats.Elements++

		rules := sheet.Match(n)
		if len(rules) == 0 {
			return
		}
		stats.Matched++

		style, changed := e.merge(s.AttrOr("style", ""), cascade(rules))
		if !changed {
			return
		}
		s.SetAttr("style", style)
		stats.Changed++
	})

	out, err := render(root, sh)
	if err != nil {
		return "", stats, err
	}
	return out, stats, nil
}

// cascade folds matched rules (already in cascade order) into one declaration
// per property.
func cascade(rules []css.Rule) []css.Declaration {
	var decls []css.Declaration
	for _, rule := range rules {
		decls = append(decls, rule.Declarations...)
	}
	return fold(decls)
}

// fold keeps one declaration per property. A later declaration replaces an
// earlier one unless only the earlier one is important. Properties keep the
// position they were first seen at.
func fold(decls []css.Declaration) []css.Declaration {
	var (
		out   []css.Declaration
		index = map[string]int{}
	)
	for _, d := range decls {
		i, ok := index[d.Property]
		if !ok {
			index[d.Property] = len(out)
			out = append(out, d)
			continue
		}
		if out[i].Important && !d.Important {
			continue
		}
		out[i] = d
	}
	return out
}

// merge combines an existing style attribute with cascaded declarations.
// Inline declarations win unless the cascaded one is important and the
// inline one is not. The second result reports whether the attribute needs
// rewriting.
func (e *Engine) merge(inlineStyle string, decls []css.Declaration) (string, bool) {
	current := fold(e.parser.ParseInline(inlineStyle))

	index := make(map[string]int, len(current))
	for i, d := range current {
		index[d.Property] = i
	}

	changed := false
	for _, d := range decls {
		i, ok := index[d.Property]
		if !ok {
			index[d.Property] = len(current)
			current = append(current, d)
			changed = true
			continue
		}
		if d.Important && !current[i].Important {
			current[i] = d
			changed = true
		}
	}
	if !changed {
		return inlineStyle, false
	}

	parts := make([]string, len(current))
	for i, d := range current {
		parts[i] = d.String()
	}
	return strings.Join(parts, " "), true
}

// parseMarkup parses a document or a partial. Markup with html, head or body
// tags (or a doctype) is parsed as a document; anything else is attached to a
// detached context element picked from its leading tag.
func parseMarkup(markup string) (*html.Node, shape, error) {
	if fullDocument.MatchString(markup) {
		sh := shape{
			full: true,
			html: htmlTag.MatchString(markup),
			head: headTag.MatchString(markup),
			body: bodyTag.MatchString(markup),
		}
		doc, err := html.Parse(strings.NewReader(markup))
		if err != nil {
			return nil, sh, fmt.Errorf("parse html document: %w", err)
		}
		return doc, sh, nil
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	if m := firstTag.FindStringSubmatch(markup); m != nil {
		if a, ok := fragmentContext[strings.ToLower(m[1])]; ok {
			ctx = &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
		}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, shape{}, fmt.Errorf("parse html fragment: %w", err)
	}
	for _, n := range nodes {
		ctx.AppendChild(n)
	}
	return ctx, shape{}, nil
}

func render(root *html.Node, sh shape) (string, error) {
	var buf bytes.Buffer
	if err := renderNode(&buf, root, sh); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// renderNode writes the children of n, unwrapping the html, head and body
// elements the parser implied.
func renderNode(buf *bytes.Buffer, n *html.Node, sh shape) error {
	if sh.full && sh.html {
		return html.Render(buf, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if sh.implied(c) {
			if err := renderNode(buf, c, sh); err != nil {
				return err
			}
			continue
		}
		if err := html.Render(buf, c); err != nil {
			return err
		}
	}
	return nil
}

var defaultEngine = New(nil)

// Inline applies cssText to markup with a silent engine.
func Inline(markup, cssText string) string {
	return defaultEngine.Inline(markup, cssText)
}
