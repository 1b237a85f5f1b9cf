// Package providertest provides an in-memory provider for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/mailmirror/internal/provider"
)

// Fake is an in-memory provider.Provider. It is safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	threads  map[string][]provider.Message
	failures map[string]error
	fetches  map[string]int
	reads    map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		threads:  make(map[string][]provider.Message),
		failures: make(map[string]error),
		fetches:  make(map[string]int),
		reads:    make(map[string]int),
	}
}

// Add appends messages to a thread, creating it if needed. Messages keep
// their Unread flag and get ThreadID set.
func (f *Fake) Add(threadID string, msgs ...provider.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		m.ThreadID = threadID
		f.threads[threadID] = append(f.threads[threadID], m)
	}
}

// Fail makes every call for threadID return err until cleared with a nil err.
func (f *Fake) Fail(threadID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, threadID)
		return
	}
	f.failures[threadID] = err
}

// Fetches returns how many times threadID was fetched.
func (f *Fake) Fetches(threadID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[threadID]
}

// Reads returns how many times threadID was marked read.
func (f *Fake) Reads(threadID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[threadID]
}

func (f *Fake) lookup(threadID string) ([]provider.Message, error) {
	if err := f.failures[threadID]; err != nil {
		return nil, err
	}
	msgs, ok := f.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrThreadNotFound, threadID)
	}
	return msgs, nil
}

func (f *Fake) FetchThread(ctx context.Context, threadID string) ([]provider.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[threadID]++
	msgs, err := f.lookup(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Message, len(msgs))
	copy(out, msgs)
	provider.SortMessages(out)
	return out, nil
}

func (f *Fake) SetThreadRead(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, err := f.lookup(threadID)
	if err != nil {
		return err
	}
	f.reads[threadID]++
	for i := range msgs {
		msgs[i].Unread = false
	}
	return nil
}

func (f *Fake) ThreadUnreadCount(ctx context.Context, threadID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, err := f.lookup(threadID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.Unread {
			n++
		}
	}
	return n, nil
}
