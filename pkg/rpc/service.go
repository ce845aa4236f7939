package rpc

import (
	"context"

	"google.golang.org/grpc"
)

func _Register_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RegisterRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Register(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _Login_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(LoginRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Login(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Login"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).Login(ctx, req.(*LoginRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _ListAccounts_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ListAccountsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).ListAccounts(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListAccounts"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).ListAccounts(ctx, req.(*ListAccountsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _SendMessage_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(SendMessageRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).SendMessage(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendMessage"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).SendMessage(ctx, req.(*SendMessageRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _GetMessages_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(GetMessagesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).GetMessages(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetMessages"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).GetMessages(ctx, req.(*GetMessagesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _MarkAsRead_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(MarkAsReadRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).MarkAsRead(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/MarkAsRead"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).MarkAsRead(ctx, req.(*MarkAsReadRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _DeleteMessages_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(DeleteMessagesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).DeleteMessages(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DeleteMessages"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).DeleteMessages(ctx, req.(*DeleteMessagesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _DeleteAccount_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(DeleteAccountRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).DeleteAccount(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DeleteAccount"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).DeleteAccount(ctx, req.(*DeleteAccountRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func _Join_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(JoinRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Join(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Join"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).Join(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// chatStreamMessagesServer adapts grpc.ServerStream to streamMessagesServer
// so Server.StreamMessages never has to import the grpc package directly.
type chatStreamMessagesServer struct {
	grpc.ServerStream
}

func (x *chatStreamMessagesServer) SendMsg(m interface{}) error {
	return x.ServerStream.SendMsg(m)
}

func _StreamMessages_Handler(srv interface{}, stream grpc.ServerStream) error {
	req := new(StreamMessagesRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*Server).StreamMessages(req, &chatStreamMessagesServer{stream})
}

// ServiceDesc is registered against a *grpc.Server exactly as a
// protoc-gen-go-grpc generated descriptor would be, just authored by hand:
// every RPC the chat service exposes, whether unary or the one
// server-streaming method, goes through this table.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: _Register_Handler},
		{MethodName: "Login", Handler: _Login_Handler},
		{MethodName: "ListAccounts", Handler: _ListAccounts_Handler},
		{MethodName: "SendMessage", Handler: _SendMessage_Handler},
		{MethodName: "GetMessages", Handler: _GetMessages_Handler},
		{MethodName: "MarkAsRead", Handler: _MarkAsRead_Handler},
		{MethodName: "DeleteMessages", Handler: _DeleteMessages_Handler},
		{MethodName: "DeleteAccount", Handler: _DeleteAccount_Handler},
		{MethodName: "Join", Handler: _Join_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamMessages",
			Handler:       _StreamMessages_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "chat.proto",
}

// RegisterChatServiceServer registers srv's handlers on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&ServiceDesc, srv)
}
