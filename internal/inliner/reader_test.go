package inliner

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSS_File(t *testing.T) {
	path := writeTempFile(t, "mail.css", ".a { color: red }")
	c := New(nil)

	assert.Equal(t, ".a { color: red }", c.ReadCSS(path))
	assert.Equal(t, "", c.ReadCSS(filepath.Join(t.TempDir(), "missing.css")))
}

func TestReadCSS_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.css":
			_, _ = w.Write([]byte(".b { color: blue }"))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(nil, WithHTTPClient(srv.Client()))
	assert.Equal(t, ".b { color: blue }", c.ReadCSS(srv.URL+"/ok.css"))
	assert.Equal(t, "", c.ReadCSS(srv.URL+"/missing.css"))

	_, err := c.FetchCSS(srv.URL + "/missing.css")
	require.ErrorContains(t, err, "http 404")
}

func TestInterceptors(t *testing.T) {
	path := writeTempFile(t, "mail.css", ".disk {}")
	other := writeTempFile(t, "other.css", ".other-disk {}")

	var seen []string
	exact := ResolverFunc(func(id string, c *Converter) (string, error) {
		seen = append(seen, "exact:"+id)
		return ".exact {}", nil
	})
	wildcard := ResolverFunc(func(id string, c *Converter) (string, error) {
		seen = append(seen, "wildcard:"+id)
		disk, err := c.FetchCSS(id)
		return disk + " .wildcard {}", err
	})

	c := New(nil).InterceptCSSFile(path, exact)
	assert.Equal(t, ".exact {}", c.ReadCSS(path))
	assert.Equal(t, ".other-disk {}", c.ReadCSS(other))

	c.InterceptCSSFiles(wildcard)
	assert.Equal(t, ".exact {}", c.ReadCSS(path))
	assert.Equal(t, ".other-disk {} .wildcard {}", c.ReadCSS(other))

	c.ClearInterceptors()
	assert.Equal(t, ".disk {}", c.ReadCSS(path))

	assert.Equal(t, []string{"exact:" + path, "exact:" + path, "wildcard:" + other}, seen)
}

func TestInterceptors_ErrorIsEmptyContribution(t *testing.T) {
	c := New(nil).InterceptCSSFiles(ResolverFunc(func(string, *Converter) (string, error) {
		return ".ignored {}", errors.New("offline")
	}))

	assert.Equal(t, "", c.ReadCSS("/srv/a.css"))

	_, err := c.readCSS("/srv/a.css")
	require.ErrorContains(t, err, "offline")
}
