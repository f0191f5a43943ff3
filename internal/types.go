package internal

type DraftStatus string

const (
	DraftConverted DraftStatus = "converted"
	DraftUnchanged DraftStatus = "unchanged"
	DraftFailed    DraftStatus = "failed"
	// DraftOutput marks the hash of a message written back by the listener.
	DraftOutput DraftStatus = "output"
)

// Draft is a message fetched from a drafts mailbox.
type Draft struct {
	Provider  string
	ID        string
	MessageID string
	Subject   string
	Raw       []byte
}

type DraftRow struct {
	ID        int
	Provider  string
	DraftID   string
	MessageID string
	Subject   string
	Hash      string
	Status    DraftStatus
	Error     *string
	CreatedAt string
}

type CSSCacheEntry struct {
	URL         string
	Body        string
	ETag        *string
	ContentType *string
	FetchedAt   string
}

type RunRow struct {
	ID          int
	TraceID     string
	DraftID     *int
	TimingsJSON string
	CountsJSON  string
	CreatedAt   string
}
