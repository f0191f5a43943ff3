package css_test

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"mailcss/internal/css"
)

func newParser() *css.Parser {
	return css.NewParser(zap.NewNop())
}

func TestParser_ClassSelector(t *testing.T) {
	sheet := newParser().Parse([]byte(`.font-bold { font-weight: bold; }`))

	require.Len(t, sheet.Rules, 1)
	rule := sheet.Rules[0]
	assert.Equal(t, ".font-bold", rule.Raw)
	assert.Equal(t, cascadia.Specificity{0, 1, 0}, rule.Specificity)
	assert.Equal(t, []css.Declaration{{Property: "font-weight", Value: "bold"}}, rule.Declarations)
	assert.Equal(t, 1, rule.Order)
}

func TestParser_SelectorList(t *testing.T) {
	sheet := newParser().Parse([]byte(`h1, .title, #main > p { margin: 0 }
p { color: red }`))

	require.Len(t, sheet.Rules, 4)
	assert.Equal(t, "h1", sheet.Rules[0].Raw)
	assert.Equal(t, ".title", sheet.Rules[1].Raw)
	assert.Equal(t, "#main>p", sheet.Rules[2].Raw)
	assert.Equal(t, cascadia.Specificity{1, 0, 1}, sheet.Rules[2].Specificity)

	for _, rule := range sheet.Rules[:3] {
		assert.Equal(t, 1, rule.Order, rule.Raw)
	}
	assert.Equal(t, 2, sheet.Rules[3].Order)
}

func TestParser_Important(t *testing.T) {
	sheet := newParser().Parse([]byte(`.a { color: red !important; margin: 0 auto ! IMPORTANT; padding: 1px }`))

	require.Len(t, sheet.Rules, 1)
	assert.Equal(t, []css.Declaration{
		{Property: "color", Value: "red", Important: true},
		{Property: "margin", Value: "0 auto", Important: true},
		{Property: "padding", Value: "1px"},
	}, sheet.Rules[0].Declarations)
}

func TestParser_ValueFormatting(t *testing.T) {
	sheet := newParser().Parse([]byte(`.a {
		font-family: "Helvetica Neue",Arial , sans-serif;
		color: rgb(0,0, 0);
		border:1px   solid #ccc;
		background: url(https://example.test/bg.png) no-repeat;
	}`))

	require.Len(t, sheet.Rules, 1)
	values := map[string]string{}
	for _, d := range sheet.Rules[0].Declarations {
		values[d.Property] = d.Value
	}
	assert.Equal(t, `"Helvetica Neue", Arial, sans-serif`, values["font-family"])
	assert.Equal(t, "rgb(0, 0, 0)", values["color"])
	assert.Equal(t, "1px solid #ccc", values["border"])
	assert.Equal(t, "url(https://example.test/bg.png) no-repeat", values["background"])
}

func TestParser_SkipsAtRules(t *testing.T) {
	sheet := newParser().Parse([]byte(`@charset "utf-8";
@import url("other.css");
@media (max-width: 600px) { .a { color: blue; } .b { color: green; } }
@font-face { font-family: Foo; src: url(foo.woff); }
@keyframes spin { from { opacity: 0 } to { opacity: 1 } }
.a { color: red; }`))

	require.Len(t, sheet.Rules, 1)
	assert.Equal(t, ".a", sheet.Rules[0].Raw)
	assert.Equal(t, "red", sheet.Rules[0].Declarations[0].Value)
}

func TestParser_UnsupportedSelectorsSkipped(t *testing.T) {
	sheet := newParser().Parse([]byte(`
p::before { content: "x"; }
a:unknown-thing { color: red; }
.ok { color: green; }
p:first-letter { color: red; }
`))

	require.Len(t, sheet.Rules, 1)
	assert.Equal(t, ".ok", sheet.Rules[0].Raw)
	assert.Len(t, sheet.Warnings, 3)
}

func TestParser_MalformedRuleDoesNotAbort(t *testing.T) {
	sheet := newParser().Parse([]byte(`
.a { color red; font-weight: bold; }
} .b { color: blue; }
.c { color: green
`))

	got := map[string][]css.Declaration{}
	for _, rule := range sheet.Rules {
		got[rule.Raw] = rule.Declarations
	}
	assert.Equal(t, []css.Declaration{{Property: "font-weight", Value: "bold"}}, got[".a"])
	assert.Equal(t, []css.Declaration{{Property: "color", Value: "green"}}, got[".c"])
}

func TestParser_CustomProperty(t *testing.T) {
	sheet := newParser().Parse([]byte(`:root { --brand: #123456; } .a { color: var(--brand); }`))

	require.Len(t, sheet.Rules, 2)
	assert.Equal(t, []css.Declaration{{Property: "--brand", Value: "#123456"}}, sheet.Rules[0].Declarations)
	assert.Equal(t, "var(--brand)", sheet.Rules[1].Declarations[0].Value)
}

func TestParser_ParseInline(t *testing.T) {
	p := newParser()

	assert.Nil(t, p.ParseInline("   "))
	assert.Equal(t, []css.Declaration{
		{Property: "color", Value: "green"},
		{Property: "margin", Value: "0", Important: true},
	}, p.ParseInline("COLOR:green;; margin: 0 !important"))
	assert.Equal(t, []css.Declaration{{Property: "padding", Value: "2px"}}, p.ParseInline("color; padding: 2px"))
}

func TestDeclaration_String(t *testing.T) {
	assert.Equal(t, "color: red;", css.Declaration{Property: "color", Value: "red"}.String())
	assert.Equal(t, "color: red !important;", css.Declaration{Property: "color", Value: "red", Important: true}.String())
}

func TestStylesheet_MatchOrder(t *testing.T) {
	sheet := newParser().Parse([]byte(`
#x { color: id; }
span.a { color: type-class; }
.b { color: b; }
.a { color: a; }
span { color: type; }
div span { color: descendant; }
`))
	doc, err := html.Parse(strings.NewReader(`<div><span id="x" class="a b">t</span></div>`))
	require.NoError(t, err)

	span := cascadia.MustCompile("span").MatchFirst(doc)
	require.NotNil(t, span)

	var order []string
	for _, rule := range sheet.Match(span) {
		order = append(order, rule.Raw)
	}
	assert.Equal(t, []string{"span", "div span", ".b", ".a", "span.a", "#x"}, order)

	assert.Len(t, sheet.RulesBySelector(".a"), 1)
	assert.Empty(t, sheet.Match(nil))
}
