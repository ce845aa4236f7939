package rpc

import (
	"context"

	"github.com/raftchat/raftchat/pkg/types"
	"google.golang.org/grpc"
)

// ChatServiceClient is the client-side counterpart of ServiceDesc: the same
// typed methods a protoc-gen-go-grpc stub would expose, hand-written against
// grpc.ClientConnInterface so pkg/client never has to build method paths or
// cast responses itself.
type ChatServiceClient interface {
	Register(ctx context.Context, req *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, req *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	ListAccounts(ctx context.Context, req *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error)
	SendMessage(ctx context.Context, req *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error)
	GetMessages(ctx context.Context, req *GetMessagesRequest, opts ...grpc.CallOption) (*GetMessagesResponse, error)
	MarkAsRead(ctx context.Context, req *MarkAsReadRequest, opts ...grpc.CallOption) (*MarkAsReadResponse, error)
	DeleteMessages(ctx context.Context, req *DeleteMessagesRequest, opts ...grpc.CallOption) (*DeleteMessagesResponse, error)
	DeleteAccount(ctx context.Context, req *DeleteAccountRequest, opts ...grpc.CallOption) (*DeleteAccountResponse, error)
	Join(ctx context.Context, req *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
	StreamMessages(ctx context.Context, req *StreamMessagesRequest, opts ...grpc.CallOption) (ChatService_StreamMessagesClient, error)
}

type chatServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewChatServiceClient wraps cc for calling the chat service.
func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return &chatServiceClient{cc: cc}
}

func (c *chatServiceClient) Register(ctx context.Context, req *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	resp := new(RegisterResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Register", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) Login(ctx context.Context, req *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	resp := new(LoginResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Login", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) ListAccounts(ctx context.Context, req *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	resp := new(ListAccountsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListAccounts", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) SendMessage(ctx context.Context, req *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	resp := new(SendMessageResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SendMessage", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) GetMessages(ctx context.Context, req *GetMessagesRequest, opts ...grpc.CallOption) (*GetMessagesResponse, error) {
	resp := new(GetMessagesResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetMessages", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) MarkAsRead(ctx context.Context, req *MarkAsReadRequest, opts ...grpc.CallOption) (*MarkAsReadResponse, error) {
	resp := new(MarkAsReadResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/MarkAsRead", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) DeleteMessages(ctx context.Context, req *DeleteMessagesRequest, opts ...grpc.CallOption) (*DeleteMessagesResponse, error) {
	resp := new(DeleteMessagesResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/DeleteMessages", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) DeleteAccount(ctx context.Context, req *DeleteAccountRequest, opts ...grpc.CallOption) (*DeleteAccountResponse, error) {
	resp := new(DeleteAccountResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/DeleteAccount", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *chatServiceClient) Join(ctx context.Context, req *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	resp := new(JoinResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Join", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

// ChatService_StreamMessagesClient is the receive side of the
// StreamMessages server-streaming RPC.
type ChatService_StreamMessagesClient interface {
	Recv() (*types.Message, error)
	grpc.ClientStream
}

func (c *chatServiceClient) StreamMessages(ctx context.Context, req *StreamMessagesRequest, opts ...grpc.CallOption) (ChatService_StreamMessagesClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/StreamMessages", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &chatStreamMessagesClient{stream}, nil
}

type chatStreamMessagesClient struct {
	grpc.ClientStream
}

func (x *chatStreamMessagesClient) Recv() (*types.Message, error) {
	m := new(types.Message)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
