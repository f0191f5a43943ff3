package css

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into rules that can be matched against
// static markup.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. Malformed rules and declarations,
// at-rule blocks and selectors that cannot be compiled are skipped; parsing
// always continues with the rest of the input.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{}

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	order := 0

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if !parser.HasParseError() {
				// end of input
				return sheet
			}
			p.warn(sheet, "skipping malformed CSS", zap.Error(parser.Err()))

		case css.BeginAtRuleGrammar:
			p.log.Debug("Skipping @-rule block", zap.String("rule", string(data)))
			if !p.skipAtRuleBlock(parser) {
				return sheet
			}

		case css.AtRuleGrammar:
			p.log.Debug("Skipping @-rule", zap.String("rule", string(data)))

		case css.BeginRulesetGrammar:
			selectors := splitSelectors(parser.Values())
			decls, more := p.parseDeclarations(parser)
			order++
			if len(decls) > 0 {
				for _, raw := range selectors {
					p.addRule(sheet, raw, decls, order)
				}
			}
			if !more {
				return sheet
			}
		}
	}
}

// ParseInline parses the content of a style attribute.
func (p *Parser) ParseInline(style string) []Declaration {
	if strings.TrimSpace(style) == "" {
		return nil
	}

	parser := css.NewParser(parse.NewInputString(style), true)

	var decls []Declaration
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if !parser.HasParseError() {
				return decls
			}
			p.log.Debug("Skipping malformed inline declaration", zap.Error(parser.Err()))

		case css.DeclarationGrammar:
			if decl, ok := newDeclaration(string(data), parser.Values()); ok {
				decls = append(decls, decl)
			}

		case css.CustomPropertyGrammar:
			if decl, ok := newCustomProperty(string(data), parser.Values()); ok {
				decls = append(decls, decl)
			}
		}
	}
}

func (p *Parser) addRule(sheet *Stylesheet, raw string, decls []Declaration, order int) {
	sel, err := cascadia.Parse(raw)
	if err != nil {
		p.warn(sheet, "unsupported selector: "+raw, zap.Error(err))
		return
	}
	if sel.PseudoElement() != "" {
		p.warn(sheet, "unsupported pseudo-element: "+raw)
		return
	}
	sheet.Rules = append(sheet.Rules, Rule{
		Raw:          raw,
		Selector:     sel,
		Specificity:  sel.Specificity(),
		Declarations: decls,
		Order:        order,
	})
}

func (p *Parser) warn(sheet *Stylesheet, msg string, fields ...zap.Field) {
	sheet.Warnings = append(sheet.Warnings, msg)
	p.log.Debug(msg, fields...)
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
// The second result is false when the input ended inside the block.
func (p *Parser) parseDeclarations(parser *css.Parser) ([]Declaration, bool) {
	var decls []Declaration

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.EndRulesetGrammar:
			return decls, true

		case css.ErrorGrammar:
			if !parser.HasParseError() {
				return decls, false
			}
			p.log.Debug("Skipping malformed declaration", zap.Error(parser.Err()))

		case css.BeginAtRuleGrammar:
			if !p.skipAtRuleBlock(parser) {
				return decls, false
			}

		case css.DeclarationGrammar:
			if decl, ok := newDeclaration(string(data), parser.Values()); ok {
				decls = append(decls, decl)
			}

		case css.CustomPropertyGrammar:
			if decl, ok := newCustomProperty(string(data), parser.Values()); ok {
				decls = append(decls, decl)
			}
		}
	}
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
// It returns false when the input ended first.
func (p *Parser) skipAtRuleBlock(parser *css.Parser) bool {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if !parser.HasParseError() {
				return false
			}
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
	return true
}

func newDeclaration(property string, values []css.Token) (Declaration, bool) {
	property = strings.TrimSpace(property)
	values, important := stripImportant(values)
	value := tokensString(values)
	if property == "" || value == "" {
		return Declaration{}, false
	}
	return Declaration{Property: property, Value: value, Important: important}, true
}

func newCustomProperty(property string, values []css.Token) (Declaration, bool) {
	var sb strings.Builder
	for _, t := range values {
		sb.Write(t.Data)
	}
	value := strings.TrimSpace(sb.String())
	if property == "" || value == "" {
		return Declaration{}, false
	}
	return Declaration{Property: property, Value: value}, true
}

// stripImportant removes a trailing "!important" from declaration tokens.
func stripImportant(tokens []css.Token) ([]css.Token, bool) {
	end := len(tokens)
	for end > 0 && tokens[end-1].TokenType == css.WhitespaceToken {
		end--
	}
	if end < 2 {
		return tokens[:end], false
	}
	last := tokens[end-1]
	if last.TokenType != css.IdentToken || !strings.EqualFold(string(last.Data), "important") {
		return tokens[:end], false
	}
	bang := end - 2
	for bang >= 0 && tokens[bang].TokenType == css.WhitespaceToken {
		bang--
	}
	if bang < 0 || tokens[bang].TokenType != css.DelimToken || string(tokens[bang].Data) != "!" {
		return tokens[:end], false
	}
	return tokens[:bang], true
}

// tokensString joins value tokens, collapsing whitespace and keeping a single
// space after top level commas.
func tokensString(tokens []css.Token) string {
	var sb strings.Builder
	pendingSpace := false
	for _, t := range tokens {
		if t.TokenType == css.WhitespaceToken {
			pendingSpace = sb.Len() > 0
			continue
		}
		if pendingSpace {
			sb.WriteByte(' ')
			pendingSpace = false
		}
		sb.Write(t.Data)
		if t.TokenType == css.CommaToken {
			pendingSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// splitSelectors turns the prelude of a ruleset into individual selectors,
// splitting on commas that are not nested in parentheses or brackets.
func splitSelectors(tokens []css.Token) []string {
	var (
		out   []string
		sb    strings.Builder
		level int
	)
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
		sb.Reset()
	}
	for _, t := range tokens {
		switch t.TokenType {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			level++
		case css.RightParenthesisToken, css.RightBracketToken:
			level--
		case css.CommaToken:
			if level == 0 {
				flush()
				continue
			}
		}
		sb.Write(t.Data)
	}
	flush()
	return out
}
