package imap

import (
	"bytes"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcss/internal/config"
)

const draftBody = "From: me@example.test\r\n" +
	"To: you@example.test\r\n" +
	"Subject: Weekly update\r\n" +
	"Message-ID: <draft-1@example.test>\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p class=\"lead\">Hello</p>\r\n"

func startServer(t *testing.T) *Connector {
	t.Helper()
	s := server.New(memory.New())
	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(l) }()
	t.Cleanup(func() { _ = s.Close() })

	addr := l.Addr().(*net.TCPAddr)
	conn, err := NewConnector(config.Config{
		IMAPHost:     "127.0.0.1",
		IMAPPort:     addr.Port,
		IMAPSecure:   false,
		IMAPUser:     "username",
		IMAPPassword: "password",
	})
	require.NoError(t, err)

	client, err := conn.connect()
	require.NoError(t, err)
	defer client.Logout()
	require.NoError(t, client.Create("Drafts"))
	require.NoError(t, client.Append("Drafts", []string{"\\Draft"}, time.Now(), bytes.NewBufferString(draftBody)))
	return conn
}

func TestNewConnectorRequiresSettings(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "mail.example.test", IMAPUser: "me"})
	require.EqualError(t, err, "missing required env var: IMAP_PASSWORD")
}

func TestFetchDrafts(t *testing.T) {
	conn := startServer(t)

	drafts, err := conn.FetchDrafts("Drafts", 10)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "imap", drafts[0].Provider)
	assert.Equal(t, "Weekly update", drafts[0].Subject)
	assert.Equal(t, "<draft-1@example.test>", drafts[0].MessageID)
	assert.Contains(t, string(drafts[0].Raw), `<p class="lead">Hello</p>`)

	inbox, err := conn.FetchDrafts("INBOX", 0)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestReplaceDraft(t *testing.T) {
	conn := startServer(t)

	drafts, err := conn.FetchDrafts("Drafts", 10)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	replacement := bytes.Replace([]byte(draftBody), []byte(`<p class="lead">`), []byte(`<p class="lead" style="color: red;">`), 1)
	require.NoError(t, conn.ReplaceDraft("Drafts", drafts[0], replacement))

	after, err := conn.FetchDrafts("Drafts", 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, drafts[0].ID, after[0].ID)
	assert.Contains(t, string(after[0].Raw), `style="color: red;"`)

	_, err = strconv.Atoi(after[0].ID)
	require.NoError(t, err)

	bad := after[0]
	bad.ID = "not-a-uid"
	err = conn.ReplaceDraft("Drafts", bad, replacement)
	require.ErrorContains(t, err, "invalid imap draft id")
}
