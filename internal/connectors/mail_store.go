package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// BackupStore keeps a copy of every draft before it is rewritten, named by
// the content hash.
type BackupStore struct {
	dir string
}

func NewBackupStore(dir string) *BackupStore {
	return &BackupStore{dir: dir}
}

func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Store writes raw to <dir>/<hash>.eml unless it already exists.
func (s *BackupStore) Store(raw []byte) (hash, path string, err error) {
	hash = Hash(raw)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", "", err
	}

	path = filepath.Join(s.dir, hash+".eml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", "", err
		}
	}
	return hash, path, nil
}
