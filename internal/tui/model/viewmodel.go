package model

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/matheus3301/mailmirror/internal/tui/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ViewModel caches daemon state for the views.
type ViewModel struct {
	mu sync.RWMutex

	client   *client.Client
	status   *rpc.StatusResponse
	threads  []rpc.Thread
	messages []rpc.Message
	active   string

	Flash Flash
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{client: c}
}

// LoadStatus fetches the daemon's session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Session.GetStatus(ctx, &rpc.Empty{})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadThreads fetches the thread directory.
func (vm *ViewModel) LoadThreads(ctx context.Context) error {
	resp, err := vm.client.Threads.ListThreads(ctx, &rpc.Empty{})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.threads = resp.Threads
	vm.mu.Unlock()
	return nil
}

// Open makes handle the active thread and loads its messages.
func (vm *ViewModel) Open(ctx context.Context, handle string) error {
	resp, err := vm.client.Threads.Messages(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = handle
	vm.messages = resp.Messages
	vm.mu.Unlock()
	return nil
}

// Close clears the active thread.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.active = ""
	vm.messages = nil
	vm.mu.Unlock()
}

// Watch follows the live view of handle, calling fn with the full message
// list on every frame. It returns nil when ctx ends or the daemon closes
// the stream.
func (vm *ViewModel) Watch(ctx context.Context, handle string, fn func([]rpc.Message)) error {
	stream, err := vm.client.Threads.Subscribe(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		return err
	}
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil
		}
		if err != nil {
			return err
		}

		vm.mu.Lock()
		stale := vm.active != handle
		if !stale {
			vm.messages = frame.Messages
		}
		vm.mu.Unlock()
		if !stale {
			fn(frame.Messages)
		}
	}
}

// Sync pulls new provider messages into handle.
func (vm *ViewModel) Sync(ctx context.Context, handle string) (*rpc.SyncResponse, error) {
	return vm.client.Threads.Sync(ctx, &rpc.HandleRequest{Handle: handle})
}

// MarkRead clears the thread's unread state at the provider.
func (vm *ViewModel) MarkRead(ctx context.Context, handle string) error {
	_, err := vm.client.Threads.MarkRead(ctx, &rpc.HandleRequest{Handle: handle})
	return err
}

// Leave erases the local mirror of handle.
func (vm *ViewModel) Leave(ctx context.Context, handle string) (int, error) {
	resp, err := vm.client.Threads.Erase(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// CheckUpdates lists handles whose provider thread has unseen messages.
func (vm *ViewModel) CheckUpdates(ctx context.Context) ([]string, error) {
	resp, err := vm.client.Threads.CheckUpdates(ctx, &rpc.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Handles, nil
}

// Search runs a full-text query over every mirrored thread.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]rpc.SearchHit, error) {
	resp, err := vm.client.Threads.Search(ctx, &rpc.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Threads returns a snapshot of the thread directory.
func (vm *ViewModel) Threads() []rpc.Thread {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.threads
}

// Messages returns a snapshot of the active thread's messages.
func (vm *ViewModel) Messages() []rpc.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Active returns the handle of the open thread, or "".
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Status returns the last fetched session status, or nil.
func (vm *ViewModel) Status() *rpc.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Subject returns the subject of a listed thread, falling back to the handle.
func (vm *ViewModel) Subject(handle string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, t := range vm.threads {
		if t.Handle == handle && t.Subject != "" {
			return t.Subject
		}
	}
	return handle
}
