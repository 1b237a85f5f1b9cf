package api

import (
	"context"
	"time"

	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/matheus3301/mailmirror/internal/status"
	"github.com/matheus3301/mailmirror/internal/store"
)

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	sessionName  string
	providerKind string
	startedAt    time.Time
	machine      *status.Machine
	db           *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName, providerKind string, machine *status.Machine, db *store.DB) *SessionService {
	return &SessionService{
		sessionName:  sessionName,
		providerKind: providerKind,
		startedAt:    time.Now(),
		machine:      machine,
		db:           db,
	}
}

func (s *SessionService) GetStatus(ctx context.Context, _ *rpc.Empty) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{
		Session:   s.sessionName,
		Status:    string(s.machine.Current()),
		LastError: s.machine.LastError(),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
		Provider:  s.providerKind,
	}

	// Counts are best effort.
	if s.db != nil {
		if handles, err := s.db.Handles(ctx); err == nil {
			resp.ThreadCount = len(handles)
		}
		if n, err := s.db.TotalMessages(ctx); err == nil {
			resp.MessageCount = n
		}
	}
	return resp, nil
}
