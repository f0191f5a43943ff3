package state

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcss/internal/config"
)

func TestEnvFromContext(t *testing.T) {
	ctx := ContextWithEnv(context.Background())
	env := EnvFromContext(ctx)
	require.NotNil(t, env)
	assert.Same(t, env, EnvFromContext(ctx))
	assert.GreaterOrEqual(t, env.Uptime().Nanoseconds(), int64(0))

	assert.Panics(t, func() { EnvFromContext(context.Background()) })
}

func TestEnvDBIsLazy(t *testing.T) {
	env := EnvFromContext(ContextWithEnv(context.Background()))
	env.Cfg.DBPath = filepath.Join(t.TempDir(), "app.db")

	conv, err := env.Converter()
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Nil(t, env.db)

	db, err := env.DB()
	require.NoError(t, err)
	again, err := env.DB()
	require.NoError(t, err)
	assert.Same(t, db, again)

	require.NoError(t, env.Close())
	assert.Nil(t, env.db)
}

func TestNewConverter(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "mail.css")
	require.NoError(t, os.WriteFile(sheet, []byte(".a { color: red; }"), 0o644))

	conv := NewConverter(config.Config{
		InlinerCSS:            []string{sheet, ".b { margin: 0; }"},
		InlinerExtractHTMLCSS: true,
		InlinerRemoveHTMLCSS:  true,
		InlinerEmailListener:  false,
	}, nil, nil)

	assert.Equal(t, []string{sheet}, conv.CSSFiles())
	assert.Equal(t, []string{".b { margin: 0; }"}, conv.CSSRaw())
	assert.True(t, conv.HTMLCSSExtractionEnabled())
	assert.True(t, conv.HTMLCSSRemovalEnabled())
	assert.False(t, conv.EmailListenerEnabled())

	out, err := conv.ConvertHTML(`<p class="a b">x</p>`)
	require.NoError(t, err)
	assert.Equal(t, `<p class="a b" style="color: red; margin: 0;">x</p>`, out)
}

func TestNewConverterHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(".slow { color: red; }"))
	}))
	t.Cleanup(srv.Close)

	conv := NewConverter(config.Config{CSSHTTPTimeoutMs: 50, InlinerEmailListener: true}, nil, nil)

	start := time.Now()
	assert.Empty(t, conv.ReadCSS(srv.URL+"/slow.css"))
	assert.Less(t, time.Since(start), time.Second)
}
