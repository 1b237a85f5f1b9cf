package model

import (
	"sync"
	"time"
)

const (
	infoTTL  = 3 * time.Second
	errorTTL = 6 * time.Second
)

// Flash holds one transient notification for the status bar.
type Flash struct {
	mu      sync.RWMutex
	message string
	isErr   bool
	expires time.Time
}

// Info shows msg for a few seconds.
func (f *Flash) Info(msg string) {
	f.set(msg, false, infoTTL)
}

// Error shows a failure, prefixed with what was being attempted.
func (f *Flash) Error(op string, err error) {
	f.set(op+": "+err.Error(), true, errorTTL)
}

func (f *Flash) set(msg string, isErr bool, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isErr = isErr
	f.expires = time.Now().Add(d)
}

// Get returns the current message and whether it reports an error. The
// message is empty once expired.
func (f *Flash) Get() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", false
	}
	return f.message, f.isErr
}
