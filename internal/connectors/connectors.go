package connectors

import "mailcss/internal"

// DraftStore reads and rewrites messages in a drafts mailbox.
type DraftStore interface {
	FetchDrafts(mailbox string, max int) ([]internal.Draft, error)
	// ReplaceDraft swaps the stored draft for raw. The draft's ID is not
	// guaranteed to survive the replacement.
	ReplaceDraft(mailbox string, draft internal.Draft, raw []byte) error
}
