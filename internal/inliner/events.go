package inliner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// HTMLEvent is passed to HTML conversion handlers. Handlers may rewrite HTML.
type HTMLEvent struct {
	HTML      string
	Converter *Converter
}

// Abort halts the conversion in progress. It only has an effect in a
// before-HTML handler.
func (e *HTMLEvent) Abort() { e.Converter.Halt() }

// HTMLHandler observes or rewrites HTML before or after conversion.
type HTMLHandler func(*HTMLEvent) error

// OnBeforeHTML registers a handler run before CSS is inlined.
func (c *Converter) OnBeforeHTML(h HTMLHandler) *Converter {
	c.beforeHTML = append(c.beforeHTML, h)
	return c
}

// OnAfterHTML registers a handler run on the converted HTML.
func (c *Converter) OnAfterHTML(h HTMLHandler) *Converter {
	c.afterHTML = append(c.afterHTML, h)
	return c
}

// Halt stops the conversion in progress. Calls from anywhere but a
// before-conversion handler are ignored. The flag does not outlive the call.
func (c *Converter) Halt() {
	if !c.inPre {
		c.log.Debug("Halt ignored outside of a before-conversion handler")
		return
	}
	c.halted = true
}

// ConvertHTML inlines the aggregated CSS into markup. Handler errors abort
// the call and are returned.
func (c *Converter) ConvertHTML(markup string) (string, error) {
	c.halted = false

	ev := &HTMLEvent{HTML: markup, Converter: c}
	if err := c.runBefore(len(c.beforeHTML), func(i int) error { return c.beforeHTML[i](ev) }); err != nil {
		return "", fmt.Errorf("before html handler: %w", err)
	}

	out := ev.HTML
	converted := false
	switch {
	case c.halted:
		c.log.Debug("HTML processing has been halted, skipping conversion")
	case strings.TrimSpace(out) == "":
		c.log.Debug("HTML is blank, skipping conversion")
	default:
		remaining, css := c.AggregateCSS(out)
		out = c.engine.Inline(remaining, css)
		converted = true
	}

	post := &HTMLEvent{HTML: out, Converter: c}
	for _, h := range c.afterHTML {
		if err := h(post); err != nil {
			return "", fmt.Errorf("after html handler: %w", err)
		}
	}

	if converted {
		c.log.Debug("HTML conversion finished")
	}
	return post.HTML, nil
}

// runBefore runs n before-conversion handlers and stops after the first one
// that halts.
func (c *Converter) runBefore(n int, call func(i int) error) error {
	prev := c.inPre
	c.inPre = true
	defer func() { c.inPre = prev }()

	for i := 0; i < n; i++ {
		if err := call(i); err != nil {
			return err
		}
		if c.halted {
			c.log.Debug("Remaining before-conversion handlers skipped", zap.Int("handler", i))
			break
		}
	}
	return nil
}
