package connectors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcss/internal"
	"mailcss/internal/storage"
)

type fakeStore struct {
	drafts []internal.Draft
	err    error
}

func (f *fakeStore) FetchDrafts(string, int) ([]internal.Draft, error) {
	return f.drafts, f.err
}

func (f *fakeStore) ReplaceDraft(string, internal.Draft, []byte) error { return nil }

func TestBackupStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backup")
	store := NewBackupStore(dir)

	hash, path, err := store.Store([]byte("raw message"))
	require.NoError(t, err)
	assert.Equal(t, Hash([]byte("raw message")), hash)
	assert.Len(t, hash, 64)
	assert.Equal(t, filepath.Join(dir, hash+".eml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw message", string(data))

	_, again, err := store.Store([]byte("raw message"))
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestFetchPending(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	seen := internal.Draft{Provider: "imap", ID: "1", Raw: []byte("seen")}
	fresh := internal.Draft{Provider: "imap", ID: "2", Raw: []byte("fresh")}
	_, err = db.UpsertDraft("imap", "1", "", "", Hash(seen.Raw), internal.DraftConverted, nil)
	require.NoError(t, err)

	svc := NewFetchService(db, t.TempDir(), &fakeStore{drafts: []internal.Draft{seen, fresh}})
	result, err := svc.FetchPending("Drafts", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, "2", result.Pending[0].ID)
	assert.Equal(t, Hash(fresh.Raw), result.Pending[0].Hash)
	assert.FileExists(t, result.Pending[0].BackupPath)

	svc = NewFetchService(db, t.TempDir(), &fakeStore{err: errors.New("offline")})
	_, err = svc.FetchPending("Drafts", 10)
	require.ErrorContains(t, err, "fetch drafts: offline")
}
