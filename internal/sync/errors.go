package sync

import "errors"

var (
	// ErrUnresolvedThread means no external thread id is known for a handle
	// yet. Sync treats it as nothing to do.
	ErrUnresolvedThread = errors.New("unresolved thread")
	// ErrNoThreadID is returned to callers that need an external thread id
	// and cannot get one.
	ErrNoThreadID = errors.New("no thread id found")
	// ErrNotFound means the handle has neither mirrored messages nor an origin.
	ErrNotFound = errors.New("thread not found")
)
