package store

// Origin is the originating record of a thread handle: the first message a
// user saw before any sync ran. Its ExternalThreadID may be empty until the
// handle is resolved.
type Origin struct {
	Handle           string
	ExternalThreadID string
	Subject          string
	Sender           string
	Recipient        string
	Snippet          string
	ReceivedAt       int64
}

// Message is one mirrored provider message. Rows are created once and never
// updated in place.
type Message struct {
	ID                int64
	Handle            string
	ExternalMessageID string
	ExternalThreadID  string
	Subject           string
	Body              string
	Sender            string
	Recipient         string
	SentAt            int64
	CreatedAt         int64
}

// ThreadSummary aggregates the mirrored messages of one handle.
type ThreadSummary struct {
	Handle           string
	ExternalThreadID string
	Subject          string
	Sender           string
	Recipient        string
	LastMessageAt    int64
	MessageCount     int
}

// Task links a unit of follow-up work to a thread handle.
type Task struct {
	ID        string
	Handle    string
	Title     string
	CreatedAt int64
}

// SyncState is the bookkeeping row written after every sync pass.
type SyncState struct {
	Handle          string
	LastSyncedAt    int64
	LastSyncedCount int
	LastError       string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
