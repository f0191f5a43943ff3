package mailer

import (
	"context"
	"errors"
	netmail "net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcss/internal/config"
	"mailcss/internal/mail"
)

type recordingSender struct {
	from       string
	recipients []string
	raw        []byte
	calls      int
}

func (s *recordingSender) Send(reversePath string, recipients []string, msg []byte) error {
	s.calls++
	s.from = reversePath
	s.recipients = recipients
	s.raw = msg
	return nil
}

func newMessage() *mail.Message {
	msg := &mail.Message{
		From:    netmail.Address{Address: "from@example.test"},
		To:      []netmail.Address{{Address: "to@example.test"}},
		Bcc:     []netmail.Address{{Address: "hidden@example.test"}},
		Subject: "Hi",
	}
	return msg.SetHTML("<p>hello</p>")
}

func TestSend_RunsHooksInOrder(t *testing.T) {
	sender := &recordingSender{}
	var order []string

	m := New(sender, nil).
		OnSending(func(msg *mail.Message) (*mail.Message, error) {
			order = append(order, "first")
			return msg.SetHTML(`<p style="color: red;">hello</p>`), nil
		}).
		OnSending(func(msg *mail.Message) (*mail.Message, error) {
			order = append(order, "second")
			return nil, nil
		})

	require.NoError(t, m.Send(context.Background(), newMessage()))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "from@example.test", sender.from)
	assert.Equal(t, []string{"to@example.test", "hidden@example.test"}, sender.recipients)

	sent, err := mail.Read(sender.raw)
	require.NoError(t, err)
	body, ok := sent.HTML()
	require.True(t, ok)
	assert.Contains(t, body, `<p style="color: red;">hello</p>`)
}

func TestSend_HookErrorCancels(t *testing.T) {
	sender := &recordingSender{}
	boom := errors.New("boom")

	m := New(sender, nil).OnSending(func(*mail.Message) (*mail.Message, error) { return nil, boom })

	err := m.Send(context.Background(), newMessage())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, sender.calls)
}

func TestSend_Validation(t *testing.T) {
	sender := &recordingSender{}
	m := New(sender, nil)

	require.Error(t, m.Send(context.Background(), nil))

	msg := newMessage()
	msg.To, msg.Bcc = nil, nil
	require.EqualError(t, m.Send(context.Background(), msg), "message has no recipients")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Send(ctx, newMessage()), context.Canceled)
	assert.Zero(t, sender.calls)
}

func TestNewSMTP_RequiresHost(t *testing.T) {
	_, err := NewSMTP(config.Config{}, nil)
	require.EqualError(t, err, "missing required env var: SMTP_HOST")

	m, err := NewSMTP(config.Config{SMTPHost: "smtp.example.test", SMTPPort: 2525, SMTPUser: "u"}, nil)
	require.NoError(t, err)
	require.NotNil(t, m)
}
