package rpc

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

type HandleRequest struct {
	Handle string `json:"handle"`
}

type SyncResponse struct {
	Synced int `json:"synced"`
	Total  int `json:"total"`
}

type EraseResponse struct {
	Deleted int `json:"deleted"`
}

type Message struct {
	ID                int64  `json:"id"`
	Handle            string `json:"handle"`
	ExternalMessageID string `json:"external_message_id"`
	ExternalThreadID  string `json:"external_thread_id"`
	Subject           string `json:"subject"`
	Body              string `json:"body"`
	Sender            string `json:"sender"`
	Recipient         string `json:"recipient"`
	SentAtMs          int64  `json:"sent_at_ms"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type Thread struct {
	Handle           string `json:"handle"`
	ExternalThreadID string `json:"external_thread_id"`
	Subject          string `json:"subject"`
	Counterpart      string `json:"counterpart"`
	LastMessageAtMs  int64  `json:"last_message_at_ms"`
	MessageCount     int    `json:"message_count"`
	UnreadCount      int    `json:"unread_count"`
	HasTask          bool   `json:"has_task"`
}

type ListThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

type SearchRequest struct {
	Query  string `json:"query"`
	Handle string `json:"handle,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type SearchHit struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

type SearchResponse struct {
	Hits []SearchHit `json:"hits"`
}

type CheckUpdatesResponse struct {
	Handles      []string `json:"handles"`
	TotalThreads int      `json:"total_threads"`
}

type SeedOriginRequest struct {
	Handle           string `json:"handle"`
	ExternalThreadID string `json:"external_thread_id,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Sender           string `json:"sender,omitempty"`
	Recipient        string `json:"recipient,omitempty"`
	Snippet          string `json:"snippet,omitempty"`
	ReceivedAtMs     int64  `json:"received_at_ms,omitempty"`
}

type LinkTaskRequest struct {
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

type LinkTaskResponse struct {
	TaskID    string `json:"task_id"`
	CreatedMs int64  `json:"created_ms"`
}

// ThreadUpdate is one frame of a Subscribe stream: the full sorted message
// list of the thread. State is "streaming" on every frame.
type ThreadUpdate struct {
	Handle   string    `json:"handle"`
	State    string    `json:"state"`
	Messages []Message `json:"messages"`
}

type StatusResponse struct {
	Session      string `json:"session"`
	Status       string `json:"status"`
	LastError    string `json:"last_error,omitempty"`
	UptimeMs     int64  `json:"uptime_ms"`
	ThreadCount  int    `json:"thread_count"`
	MessageCount int    `json:"message_count"`
	Provider     string `json:"provider"`
}
