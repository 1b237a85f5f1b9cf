package api

import (
	"context"
	"strings"

	"github.com/matheus3301/mailmirror/internal/notify"
	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ThreadService implements the ThreadService gRPC service.
type ThreadService struct {
	rpc.UnimplementedThreadServiceServer

	engine *intsync.Engine
	hub    *notify.Hub
}

// NewThreadService creates a thread service over the engine and notify hub.
func NewThreadService(engine *intsync.Engine, hub *notify.Hub) *ThreadService {
	return &ThreadService{engine: engine, hub: hub}
}

func handleOf(req *rpc.HandleRequest) (string, error) {
	h := strings.TrimSpace(req.Handle)
	if h == "" {
		return "", grpcstatus.Error(codes.InvalidArgument, "handle is required")
	}
	return h, nil
}

func (s *ThreadService) Sync(ctx context.Context, req *rpc.HandleRequest) (*rpc.SyncResponse, error) {
	h, err := handleOf(req)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Sync(ctx, h)
	if err != nil {
		return nil, toStatus("sync", err)
	}
	return &rpc.SyncResponse{Synced: res.Synced, Total: res.Total}, nil
}

func (s *ThreadService) MarkRead(ctx context.Context, req *rpc.HandleRequest) (*rpc.Empty, error) {
	h, err := handleOf(req)
	if err != nil {
		return nil, err
	}
	if err := s.engine.MarkRead(ctx, h); err != nil {
		return nil, toStatus("mark read", err)
	}
	return &rpc.Empty{}, nil
}

func (s *ThreadService) ListThreads(ctx context.Context, _ *rpc.Empty) (*rpc.ListThreadsResponse, error) {
	threads, err := s.engine.ListThreads(ctx)
	if err != nil {
		return nil, toStatus("list threads", err)
	}
	resp := &rpc.ListThreadsResponse{Threads: make([]rpc.Thread, 0, len(threads))}
	for _, t := range threads {
		resp.Threads = append(resp.Threads, rpc.Thread{
			Handle:           t.Handle,
			ExternalThreadID: t.ExternalThreadID,
			Subject:          t.Subject,
			Counterpart:      t.Counterpart,
			LastMessageAtMs:  t.LastMessageAt,
			MessageCount:     t.MessageCount,
			UnreadCount:      t.UnreadCount,
			HasTask:          t.HasTask,
		})
	}
	return resp, nil
}

func (s *ThreadService) Erase(ctx context.Context, req *rpc.HandleRequest) (*rpc.EraseResponse, error) {
	h, err := handleOf(req)
	if err != nil {
		return nil, err
	}
	n, err := s.engine.Erase(ctx, h)
	if err != nil {
		return nil, toStatus("erase", err)
	}
	return &rpc.EraseResponse{Deleted: n}, nil
}

func (s *ThreadService) Messages(ctx context.Context, req *rpc.HandleRequest) (*rpc.MessagesResponse, error) {
	h, err := handleOf(req)
	if err != nil {
		return nil, err
	}
	msgs, err := s.engine.Messages(ctx, h)
	if err != nil {
		return nil, toStatus("messages", err)
	}
	return &rpc.MessagesResponse{Messages: messagesToRPC(msgs)}, nil
}

func (s *ThreadService) Search(ctx context.Context, req *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	results, err := s.engine.Search(ctx, req.Query, req.Handle, req.Limit)
	if err != nil {
		return nil, toStatus("search", err)
	}
	resp := &rpc.SearchResponse{Hits: make([]rpc.SearchHit, 0, len(results))}
	for _, r := range results {
		resp.Hits = append(resp.Hits, rpc.SearchHit{Message: messageToRPC(r.Message), Snippet: r.Snippet})
	}
	return resp, nil
}

func (s *ThreadService) CheckUpdates(ctx context.Context, _ *rpc.Empty) (*rpc.CheckUpdatesResponse, error) {
	u, err := s.engine.CheckUpdates(ctx)
	if err != nil {
		return nil, toStatus("check updates", err)
	}
	return &rpc.CheckUpdatesResponse{Handles: u.Handles, TotalThreads: u.Total}, nil
}

func (s *ThreadService) SeedOrigin(ctx context.Context, req *rpc.SeedOriginRequest) (*rpc.SyncResponse, error) {
	if strings.TrimSpace(req.Handle) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "handle is required")
	}
	res, err := s.engine.SeedOrigin(ctx, store.Origin{
		Handle:           strings.TrimSpace(req.Handle),
		ExternalThreadID: req.ExternalThreadID,
		Subject:          req.Subject,
		Sender:           req.Sender,
		Recipient:        req.Recipient,
		Snippet:          req.Snippet,
		ReceivedAt:       req.ReceivedAtMs,
	})
	if err != nil {
		return nil, toStatus("seed origin", err)
	}
	return &rpc.SyncResponse{Synced: res.Synced, Total: res.Total}, nil
}

func (s *ThreadService) LinkTask(ctx context.Context, req *rpc.LinkTaskRequest) (*rpc.LinkTaskResponse, error) {
	h, err := handleOf(&rpc.HandleRequest{Handle: req.Handle})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "title is required")
	}
	task, err := s.engine.LinkTask(ctx, h, req.Title)
	if err != nil {
		return nil, toStatus("link task", err)
	}
	return &rpc.LinkTaskResponse{TaskID: task.ID, CreatedMs: task.CreatedAt}, nil
}

// Subscribe streams the thread's full message list after every change until
// the client goes away or the hub closes the subscription.
func (s *ThreadService) Subscribe(req *rpc.HandleRequest, stream rpc.ThreadService_SubscribeServer) error {
	h, err := handleOf(req)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	sub, err := s.hub.Subscribe(ctx, h)
	if err != nil {
		return toStatus("subscribe", err)
	}
	defer sub.Close()

	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if u.Err != nil {
				return toStatus("subscribe", u.Err)
			}
			if err := stream.Send(&rpc.ThreadUpdate{
				Handle:   u.Handle,
				State:    sub.State().String(),
				Messages: messagesToRPC(u.Messages),
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func messagesToRPC(msgs []store.Message) []rpc.Message {
	out := make([]rpc.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToRPC(m))
	}
	return out
}

func messageToRPC(m store.Message) rpc.Message {
	return rpc.Message{
		ID:                m.ID,
		Handle:            m.Handle,
		ExternalMessageID: m.ExternalMessageID,
		ExternalThreadID:  m.ExternalThreadID,
		Subject:           m.Subject,
		Body:              m.Body,
		Sender:            m.Sender,
		Recipient:         m.Recipient,
		SentAtMs:          m.SentAt,
	}
}
