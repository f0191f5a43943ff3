package inliner

import (
	"fmt"

	"mailcss/internal/mail"
	"mailcss/internal/mailer"
)

// EmailEvent is passed to email conversion handlers. Handlers may rewrite
// the message body or swap the message.
type EmailEvent struct {
	Message   *mail.Message
	Converter *Converter
}

// Abort halts the conversion in progress. It only has an effect in a
// before-email handler.
func (e *EmailEvent) Abort() { e.Converter.Halt() }

// EmailHandler observes or rewrites a message before or after conversion.
type EmailHandler func(*EmailEvent) error

// OnBeforeEmail registers a handler run before the HTML body is converted.
func (c *Converter) OnBeforeEmail(h EmailHandler) *Converter {
	c.beforeEmail = append(c.beforeEmail, h)
	return c
}

// OnAfterEmail registers a handler run after the HTML body was converted.
func (c *Converter) OnAfterEmail(h EmailHandler) *Converter {
	c.afterEmail = append(c.afterEmail, h)
	return c
}

// ConvertEmailBody inlines CSS into the HTML body of msg. Messages without
// a string HTML body are returned untouched, as is everything when the email
// listener is disabled.
func (c *Converter) ConvertEmailBody(msg *mail.Message) (*mail.Message, error) {
	if !c.emailListener {
		c.log.Debug("Email listener is disabled, skipping conversion")
		return msg, nil
	}
	c.halted = false

	ev := &EmailEvent{Message: msg, Converter: c}
	if err := c.runBefore(len(c.beforeEmail), func(i int) error { return c.beforeEmail[i](ev) }); err != nil {
		return msg, fmt.Errorf("before email handler: %w", err)
	}
	msg = ev.Message

	if c.halted {
		c.log.Debug("Email processing has been halted, skipping conversion")
		return msg, nil
	}

	body, ok := msg.HTML()
	if !ok {
		c.log.Debug("Email has no HTML body, skipping conversion")
		return msg, nil
	}

	out, err := c.ConvertHTML(body)
	if err != nil {
		return msg, err
	}
	msg.SetHTML(out)

	post := &EmailEvent{Message: msg, Converter: c}
	for _, h := range c.afterEmail {
		if err := h(post); err != nil {
			return msg, fmt.Errorf("after email handler: %w", err)
		}
	}

	c.log.Debug("Email conversion finished")
	return post.Message, nil
}

// AttachTo makes m convert every outgoing message before it is sent.
func (c *Converter) AttachTo(m *mailer.Mailer) *Converter {
	m.OnSending(func(msg *mail.Message) (*mail.Message, error) {
		return c.ConvertEmailBody(msg)
	})
	return c
}
