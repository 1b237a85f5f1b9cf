package bus

import "time"

// Event kinds published by the daemon.
const (
	// KindThreadChanged fires after messages of a handle were inserted or deleted.
	KindThreadChanged = "mirror.thread.changed"
	// KindSyncCompleted fires after every sync pass, successful or not.
	KindSyncCompleted = "mirror.sync.completed"
	// KindStatusChanged fires on every provider health transition.
	KindStatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind string
	// Key scopes the event to one entity, the thread handle for thread
	// events. Empty for session-wide events.
	Key       string
	Timestamp time.Time
	Payload   any
}

// ThreadChange is the payload of KindThreadChanged.
type ThreadChange struct {
	Handle   string
	Inserted int
	Deleted  int
}

// ThreadChanged builds the event announcing change.
func ThreadChanged(change ThreadChange) Event {
	return Event{Kind: KindThreadChanged, Key: change.Handle, Timestamp: time.Now(), Payload: change}
}

// SyncCompleted builds the event reporting the outcome of one sync pass.
func SyncCompleted(outcome SyncOutcome) Event {
	return Event{Kind: KindSyncCompleted, Key: outcome.Handle, Timestamp: time.Now(), Payload: outcome}
}

// SyncOutcome is the payload of KindSyncCompleted. Err is nil on success.
type SyncOutcome struct {
	Handle string
	Synced int
	Err    error
}
