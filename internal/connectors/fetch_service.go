package connectors

import (
	"fmt"

	"mailcss/internal"
	"mailcss/internal/storage"
)

// PendingDraft is a fetched draft whose content has not been seen before.
type PendingDraft struct {
	internal.Draft
	Hash       string
	BackupPath string
}

type FetchService struct {
	db     *storage.DB
	store  DraftStore
	backup *BackupStore
}

type FetchResult struct {
	Fetched int
	Pending []PendingDraft
}

func NewFetchService(db *storage.DB, backupDir string, store DraftStore) *FetchService {
	return &FetchService{
		db:     db,
		store:  store,
		backup: NewBackupStore(backupDir),
	}
}

// FetchPending fetches up to max drafts and drops those whose hash is
// already recorded, either as a processed input or as a message we wrote.
func (s *FetchService) FetchPending(mailbox string, max int) (FetchResult, error) {
	drafts, err := s.store.FetchDrafts(mailbox, max)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch drafts: %w", err)
	}

	result := FetchResult{Fetched: len(drafts)}
	for _, d := range drafts {
		hash := Hash(d.Raw)
		known, err := s.db.GetDraftByHash(d.Provider, hash)
		if err != nil {
			return FetchResult{}, err
		}
		if known != nil {
			continue
		}

		_, path, err := s.backup.Store(d.Raw)
		if err != nil {
			return FetchResult{}, fmt.Errorf("backup draft %s: %w", d.ID, err)
		}
		result.Pending = append(result.Pending, PendingDraft{Draft: d, Hash: hash, BackupPath: path})
	}
	return result, nil
}
