package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ThreadServiceClient is the client API for ThreadService.
type ThreadServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewThreadServiceClient wraps cc.
func NewThreadServiceClient(cc grpc.ClientConnInterface) *ThreadServiceClient {
	return &ThreadServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, CallOptions(opts...)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ThreadServiceClient) Sync(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, threadServiceName, "Sync", in, opts)
}

func (c *ThreadServiceClient) MarkRead(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, threadServiceName, "MarkRead", in, opts)
}

func (c *ThreadServiceClient) ListThreads(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListThreadsResponse, error) {
	return invoke[ListThreadsResponse](ctx, c.cc, threadServiceName, "ListThreads", in, opts)
}

func (c *ThreadServiceClient) Erase(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (*EraseResponse, error) {
	return invoke[EraseResponse](ctx, c.cc, threadServiceName, "Erase", in, opts)
}

func (c *ThreadServiceClient) Messages(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, threadServiceName, "Messages", in, opts)
}

func (c *ThreadServiceClient) Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error) {
	return invoke[SearchResponse](ctx, c.cc, threadServiceName, "Search", in, opts)
}

func (c *ThreadServiceClient) CheckUpdates(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*CheckUpdatesResponse, error) {
	return invoke[CheckUpdatesResponse](ctx, c.cc, threadServiceName, "CheckUpdates", in, opts)
}

func (c *ThreadServiceClient) SeedOrigin(ctx context.Context, in *SeedOriginRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, threadServiceName, "SeedOrigin", in, opts)
}

func (c *ThreadServiceClient) LinkTask(ctx context.Context, in *LinkTaskRequest, opts ...grpc.CallOption) (*LinkTaskResponse, error) {
	return invoke[LinkTaskResponse](ctx, c.cc, threadServiceName, "LinkTask", in, opts)
}

// ThreadService_SubscribeClient reads frames of a Subscribe stream.
type ThreadService_SubscribeClient interface {
	Recv() (*ThreadUpdate, error)
	grpc.ClientStream
}

type subscribeClient struct {
	grpc.ClientStream
}

func (x *subscribeClient) Recv() (*ThreadUpdate, error) {
	m := new(ThreadUpdate)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Subscribe opens a live view of a thread. The stream ends when ctx is
// cancelled or the server closes it.
func (c *ThreadServiceClient) Subscribe(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (ThreadService_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ThreadServiceDesc.Streams[0], "/"+threadServiceName+"/Subscribe", CallOptions(opts...)...)
	if err != nil {
		return nil, err
	}
	x := &subscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// SessionServiceClient is the client API for SessionService.
type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionServiceClient wraps cc.
func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func (c *SessionServiceClient) GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, sessionServiceName, "GetStatus", in, opts)
}
