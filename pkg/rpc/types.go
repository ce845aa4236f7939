// Package rpc exposes a Node over gRPC using a hand-rolled service
// descriptor and a JSON codec instead of protoc-generated stubs: the wire
// messages below are plain Go structs, marshaled with encoding/json, and
// dispatched through grpc.ServiceDesc the same way protoc-gen-go-grpc would
// wire generated code, just without the code generator.
package rpc

import "github.com/raftchat/raftchat/pkg/types"

const serviceName = "chat.ChatService"

// RegisterRequest/RegisterResponse create a new account.
type RegisterRequest struct {
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}

type RegisterResponse struct {
	Error *ErrorDetail `json:"error,omitempty"`
}

// LoginRequest/LoginResponse authenticate and report pending unread count.
type LoginRequest struct {
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}

type LoginResponse struct {
	UnreadCount int          `json:"unread_count,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// ListAccountsRequest/ListAccountsResponse lists registered usernames
// matching a SQL-LIKE pattern, paginated.
type ListAccountsRequest struct {
	Pattern string `json:"pattern"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

type ListAccountsResponse struct {
	Usernames []string     `json:"usernames"`
	Total     int          `json:"total"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// SendMessageRequest/SendMessageResponse delivers a direct message.
type SendMessageRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type SendMessageResponse struct {
	MessageID uint64       `json:"message_id,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// GetMessagesRequest/GetMessagesResponse fetches a user's messages, most
// recent first.
type GetMessagesRequest struct {
	Username string `json:"username"`
	Limit    int    `json:"limit"`
}

type GetMessagesResponse struct {
	Messages []*types.Message `json:"messages"`
	Error    *ErrorDetail     `json:"error,omitempty"`
}

// MarkAsReadRequest/MarkAsReadResponse flips Read on the given ids.
type MarkAsReadRequest struct {
	Username string   `json:"username"`
	IDs      []uint64 `json:"ids"`
}

type MarkAsReadResponse struct {
	Count int          `json:"count"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// DeleteMessagesRequest/DeleteMessagesResponse removes the given ids where
// Username is sender or recipient.
type DeleteMessagesRequest struct {
	Username string   `json:"username"`
	IDs      []uint64 `json:"ids"`
}

type DeleteMessagesResponse struct {
	Count int          `json:"count"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// DeleteAccountRequest/DeleteAccountResponse removes an account and its
// messages.
type DeleteAccountRequest struct {
	Username string `json:"username"`
}

type DeleteAccountResponse struct {
	Error *ErrorDetail `json:"error,omitempty"`
}

// StreamMessagesRequest opens a server-streaming subscription for new
// messages addressed to Username. ResumeAfterID lets a reconnecting client
// skip messages it already received through a prior stream or GetMessages.
type StreamMessagesRequest struct {
	Username      string `json:"username"`
	ResumeAfterID uint64 `json:"resume_after_id"`
}

// JoinRequest/JoinResponse let a new node ask the leader to admit it. Addr
// is the raft transport address added as a voter; RPCAddr is the chat gRPC
// address advertised to the rest of the cluster so redirect hints can point
// clients at it.
type JoinRequest struct {
	NodeID  string `json:"node_id"`
	Addr    string `json:"addr"`
	RPCAddr string `json:"rpc_addr"`
	Token   string `json:"token"`
}

type JoinResponse struct {
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the JSON-codec equivalent of a gRPC status detail: every
// handler that fails sets this instead of (or alongside) a gRPC status, so
// pkg/client can switch on Kind directly rather than parsing a message
// string.
type ErrorDetail struct {
	Kind       types.ErrorKind `json:"kind"`
	Message    string          `json:"message,omitempty"`
	LeaderID   string          `json:"leader_id,omitempty"`
	LeaderAddr string          `json:"leader_addr,omitempty"`
}
