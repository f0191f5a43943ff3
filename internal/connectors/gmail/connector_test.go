package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailcss/internal"
	"mailcss/internal/config"
)

const rawDraft = "Subject: Launch\r\nMessage-ID: <launch@example.test>\r\nContent-Type: text/html\r\n\r\n<p>Hi</p>\r\n"

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return &Connector{service: svc}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewConnectorRequiresSettings(t *testing.T) {
	_, err := NewConnector(config.Config{GmailClientID: "id"})
	require.EqualError(t, err, "missing required env var: GMAIL_CLIENT_SECRET")
}

func TestDecodeBase64URL(t *testing.T) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		out, err := decodeBase64URL(enc.EncodeToString([]byte("a?b>")))
		require.NoError(t, err)
		assert.Equal(t, "a?b>", string(out))
	}

	_, err := decodeBase64URL("***")
	require.Error(t, err)
}

func TestFetchAndReplaceDrafts(t *testing.T) {
	var updated []byte
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("maxResults"))
		writeJSON(w, map[string]any{"drafts": []map[string]any{
			{"id": "r1", "message": map[string]any{"id": "m1"}},
			{"id": "", "message": map[string]any{"id": "skip"}},
		}})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/drafts/r1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "raw", r.URL.Query().Get("format"))
		writeJSON(w, map[string]any{"id": "r1", "message": map[string]any{
			"id":  "m1",
			"raw": base64.RawURLEncoding.EncodeToString([]byte(rawDraft)),
		}})
	})
	mux.HandleFunc("PUT /gmail/v1/users/me/drafts/r1", func(w http.ResponseWriter, r *http.Request) {
		var body gmail.Draft
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		updated, _ = decodeBase64URL(body.Message.Raw)
		writeJSON(w, map[string]any{"id": "r1", "message": map[string]any{"id": "m2"}})
	})

	conn := newTestConnector(t, mux)

	drafts, err := conn.FetchDrafts("Drafts", 5)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "gmail", drafts[0].Provider)
	assert.Equal(t, "r1", drafts[0].ID)
	assert.Equal(t, "Launch", drafts[0].Subject)
	assert.Equal(t, "<launch@example.test>", drafts[0].MessageID)
	assert.Equal(t, rawDraft, string(drafts[0].Raw))

	require.NoError(t, conn.ReplaceDraft("Drafts", drafts[0], []byte("converted")))
	assert.Equal(t, "converted", string(updated))
}

func TestReplaceDraftError(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}))

	err := conn.ReplaceDraft("", internal.Draft{ID: "gone"}, []byte("x"))
	require.ErrorContains(t, err, "update gmail draft gone")
}
