// Package provider defines the contract between the sync engine and an
// external threaded mailbox.
package provider

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrProviderUnavailable covers network and auth failures talking to the
	// provider. It is only retried by the next natural poll.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrThreadNotFound means the provider no longer knows the thread.
	ErrThreadNotFound = errors.New("thread not found at provider")
)

// Message is one message as the provider reports it.
type Message struct {
	ID       string
	ThreadID string
	Subject  string
	Body     string
	From     string
	To       string
	SentAt   time.Time
	Unread   bool
}

// Provider is an external mailbox. Implementations perform no local mutation.
type Provider interface {
	// FetchThread returns every message currently visible in the thread,
	// ascending by SentAt.
	FetchThread(ctx context.Context, threadID string) ([]Message, error)
	// SetThreadRead clears the unread flag of every message in the thread.
	// Calling it on an already-read thread is not an error.
	SetThreadRead(ctx context.Context, threadID string) error
	// ThreadUnreadCount returns how many messages of the thread are unread.
	ThreadUnreadCount(ctx context.Context, threadID string) (int, error)
}

// SortMessages orders msgs by SentAt, keeping provider order on ties.
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.SentAt.Compare(b.SentAt)
	})
}
