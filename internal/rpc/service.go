package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	threadServiceName  = "mailmirror.v1.ThreadService"
	sessionServiceName = "mailmirror.v1.SessionService"
)

// ThreadServiceServer is the server API for ThreadService.
type ThreadServiceServer interface {
	Sync(context.Context, *HandleRequest) (*SyncResponse, error)
	MarkRead(context.Context, *HandleRequest) (*Empty, error)
	ListThreads(context.Context, *Empty) (*ListThreadsResponse, error)
	Erase(context.Context, *HandleRequest) (*EraseResponse, error)
	Messages(context.Context, *HandleRequest) (*MessagesResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	CheckUpdates(context.Context, *Empty) (*CheckUpdatesResponse, error)
	SeedOrigin(context.Context, *SeedOriginRequest) (*SyncResponse, error)
	LinkTask(context.Context, *LinkTaskRequest) (*LinkTaskResponse, error)
	Subscribe(*HandleRequest, ThreadService_SubscribeServer) error
}

// ThreadService_SubscribeServer is the server side of a Subscribe stream.
type ThreadService_SubscribeServer interface {
	Send(*ThreadUpdate) error
	grpc.ServerStream
}

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
}

// UnimplementedThreadServiceServer answers every call with codes.Unimplemented.
type UnimplementedThreadServiceServer struct{}

func (UnimplementedThreadServiceServer) Sync(context.Context, *HandleRequest) (*SyncResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Sync not implemented")
}
func (UnimplementedThreadServiceServer) MarkRead(context.Context, *HandleRequest) (*Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkRead not implemented")
}
func (UnimplementedThreadServiceServer) ListThreads(context.Context, *Empty) (*ListThreadsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListThreads not implemented")
}
func (UnimplementedThreadServiceServer) Erase(context.Context, *HandleRequest) (*EraseResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Erase not implemented")
}
func (UnimplementedThreadServiceServer) Messages(context.Context, *HandleRequest) (*MessagesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Messages not implemented")
}
func (UnimplementedThreadServiceServer) Search(context.Context, *SearchRequest) (*SearchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Search not implemented")
}
func (UnimplementedThreadServiceServer) CheckUpdates(context.Context, *Empty) (*CheckUpdatesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckUpdates not implemented")
}
func (UnimplementedThreadServiceServer) SeedOrigin(context.Context, *SeedOriginRequest) (*SyncResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SeedOrigin not implemented")
}
func (UnimplementedThreadServiceServer) LinkTask(context.Context, *LinkTaskRequest) (*LinkTaskResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method LinkTask not implemented")
}
func (UnimplementedThreadServiceServer) Subscribe(*HandleRequest, ThreadService_SubscribeServer) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

// unary builds a method descriptor around a typed handler, running the
// server's interceptor when one is installed.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type subscribeServer struct {
	grpc.ServerStream
}

func (s *subscribeServer) Send(u *ThreadUpdate) error {
	return s.ServerStream.SendMsg(u)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(HandleRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ThreadServiceServer).Subscribe(in, &subscribeServer{stream})
}

// ThreadServiceDesc describes mailmirror.v1.ThreadService.
var ThreadServiceDesc = grpc.ServiceDesc{
	ServiceName: threadServiceName,
	HandlerType: (*ThreadServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(threadServiceName, "Sync", ThreadServiceServer.Sync),
		unary(threadServiceName, "MarkRead", ThreadServiceServer.MarkRead),
		unary(threadServiceName, "ListThreads", ThreadServiceServer.ListThreads),
		unary(threadServiceName, "Erase", ThreadServiceServer.Erase),
		unary(threadServiceName, "Messages", ThreadServiceServer.Messages),
		unary(threadServiceName, "Search", ThreadServiceServer.Search),
		unary(threadServiceName, "CheckUpdates", ThreadServiceServer.CheckUpdates),
		unary(threadServiceName, "SeedOrigin", ThreadServiceServer.SeedOrigin),
		unary(threadServiceName, "LinkTask", ThreadServiceServer.LinkTask),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
}

// SessionServiceDesc describes mailmirror.v1.SessionService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(sessionServiceName, "GetStatus", SessionServiceServer.GetStatus),
	},
}

// RegisterThreadServiceServer registers srv on s.
func RegisterThreadServiceServer(s grpc.ServiceRegistrar, srv ThreadServiceServer) {
	s.RegisterService(&ThreadServiceDesc, srv)
}

// RegisterSessionServiceServer registers srv on s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}
