package mail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// Part is an attachment or an inline (cid: referenced) part.
type Part struct {
	FileName    string
	ContentType string
	ContentID   string
	Content     []byte
}

// Message is an outgoing or stored email. The HTML body is either absent,
// a string or a stream; only a string body can be rewritten in place.
type Message struct {
	From    netmail.Address
	To      []netmail.Address
	Cc      []netmail.Address
	Bcc     []netmail.Address
	ReplyTo []netmail.Address
	Subject string
	Date    time.Time

	// Headers holds everything not covered by the fields above.
	Headers textproto.MIMEHeader

	Text        string
	Attachments []Part
	Inlines     []Part

	html       *string
	htmlStream io.Reader
}

// HTML returns the HTML body. It reports false when the body is absent or
// was supplied as a stream.
func (m *Message) HTML() (string, bool) {
	if m == nil || m.html == nil {
		return "", false
	}
	return *m.html, true
}

// SetHTML replaces the HTML body with a string.
func (m *Message) SetHTML(body string) *Message {
	m.html = &body
	m.htmlStream = nil
	return m
}

// SetHTMLStream sets an HTML body that is only read when the message is
// encoded.
func (m *Message) SetHTMLStream(r io.Reader) *Message {
	m.html = nil
	m.htmlStream = r
	return m
}

// ClearHTML drops the HTML body.
func (m *Message) ClearHTML() *Message {
	m.html = nil
	m.htmlStream = nil
	return m
}

// HasHTMLStream reports whether the HTML body is a stream.
func (m *Message) HasHTMLStream() bool {
	return m != nil && m.htmlStream != nil
}

// Recipients returns the envelope recipients.
func (m *Message) Recipients() []string {
	var out []string
	for _, list := range [][]netmail.Address{m.To, m.Cc, m.Bcc} {
		for _, a := range list {
			if a.Address != "" {
				out = append(out, a.Address)
			}
		}
	}
	return out
}

var builtinHeaders = map[string]bool{
	"From":                      true,
	"To":                        true,
	"Cc":                        true,
	"Bcc":                       true,
	"Reply-To":                  true,
	"Subject":                   true,
	"Date":                      true,
	"Mime-Version":              true,
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
	"Content-Disposition":       true,
	"Content-Id":                true,
}

// Read parses a raw RFC 5322 message.
func Read(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	msg := &Message{
		Subject: env.GetHeader("Subject"),
		Headers: textproto.MIMEHeader{},
	}

	if from, err := addressList(env, "From"); err != nil {
		return nil, err
	} else if len(from) > 0 {
		msg.From = from[0]
	}
	if msg.To, err = addressList(env, "To"); err != nil {
		return nil, err
	}
	if msg.Cc, err = addressList(env, "Cc"); err != nil {
		return nil, err
	}
	if msg.Bcc, err = addressList(env, "Bcc"); err != nil {
		return nil, err
	}
	if msg.ReplyTo, err = addressList(env, "Reply-To"); err != nil {
		return nil, err
	}

	if value := env.GetHeader("Date"); value != "" {
		if t, err := netmail.ParseDate(value); err == nil {
			msg.Date = t
		}
	}

	for _, key := range env.GetHeaderKeys() {
		key = textproto.CanonicalMIMEHeaderKey(key)
		if builtinHeaders[key] {
			continue
		}
		for _, v := range env.GetHeaderValues(key) {
			msg.Headers.Add(key, v)
		}
	}

	if env.HTML != "" {
		msg.SetHTML(env.HTML)
	}
	// enmime derives Text from the HTML part when there is no text part;
	// keep Text empty in that case so the rebuilt message stays HTML only.
	if env.HTML == "" || hasTextPart(env.Root) {
		msg.Text = env.Text
	}

	for _, p := range env.Attachments {
		msg.Attachments = append(msg.Attachments, newPart(p))
	}
	for _, p := range env.Inlines {
		msg.Inlines = append(msg.Inlines, newPart(p))
	}

	return msg, nil
}

// Bytes encodes the message. A streamed HTML body is consumed.
func (m *Message) Bytes() ([]byte, error) {
	b := enmime.Builder().
		From(m.From.Name, m.From.Address).
		Subject(m.Subject)

	if len(m.To) > 0 {
		b = b.ToAddrs(m.To)
	}
	if len(m.Cc) > 0 {
		b = b.CCAddrs(m.Cc)
	}
	if len(m.Bcc) > 0 {
		b = b.BCCAddrs(m.Bcc)
	}
	if len(m.ReplyTo) > 0 {
		b = b.ReplyTo(m.ReplyTo[0].Name, m.ReplyTo[0].Address)
	}
	if !m.Date.IsZero() {
		b = b.Date(m.Date)
	}
	for key, values := range m.Headers {
		for _, v := range values {
			b = b.Header(key, v)
		}
	}

	if m.Text != "" {
		b = b.Text([]byte(m.Text))
	}
	switch {
	case m.html != nil:
		b = b.HTML([]byte(*m.html))
	case m.htmlStream != nil:
		body, err := io.ReadAll(m.htmlStream)
		if err != nil {
			return nil, fmt.Errorf("read html stream: %w", err)
		}
		m.htmlStream = nil
		b = b.HTML(body)
	}

	for _, p := range m.Attachments {
		b = b.AddAttachment(p.Content, p.ContentType, p.FileName)
	}
	for _, p := range m.Inlines {
		b = b.AddInline(p.Content, p.ContentType, p.FileName, p.ContentID)
	}

	root, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func addressList(env *enmime.Envelope, key string) ([]netmail.Address, error) {
	if strings.TrimSpace(env.GetHeader(key)) == "" {
		return nil, nil
	}
	list, err := env.AddressList(key)
	if err != nil {
		if errors.Is(err, netmail.ErrHeaderNotPresent) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s header: %w", key, err)
	}
	out := make([]netmail.Address, 0, len(list))
	for _, a := range list {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func hasTextPart(p *enmime.Part) bool {
	for ; p != nil; p = p.NextSibling {
		if strings.EqualFold(p.ContentType, "text/plain") && !strings.EqualFold(p.Disposition, "attachment") {
			return true
		}
		if hasTextPart(p.FirstChild) {
			return true
		}
	}
	return false
}

func newPart(p *enmime.Part) Part {
	return Part{
		FileName:    p.FileName,
		ContentType: p.ContentType,
		ContentID:   p.ContentID,
		Content:     p.Content,
	}
}
