package rpc

import (
	"context"
	"time"

	"github.com/raftchat/raftchat/pkg/consensus"
	"github.com/raftchat/raftchat/pkg/log"
	"github.com/raftchat/raftchat/pkg/types"
)

// Server implements the chat.ChatService handlers against a single Node.
// Every write goes through node.Propose; every read goes straight to the
// node's state machine, which is safe to call from any number of
// goroutines concurrently with raft applying new entries.
type Server struct {
	node *consensus.Node
}

// NewServer wraps node for serving.
func NewServer(node *consensus.Node) *Server {
	return &Server{node: node}
}

func notLeaderDetail(err error) *ErrorDetail {
	if nl, ok := err.(*consensus.ErrNotLeader); ok {
		kind := types.ErrNotLeader
		if nl.LeaderAddr == "" {
			kind = types.ErrNoLeader
		}
		return &ErrorDetail{Kind: kind, Message: err.Error(), LeaderID: nl.LeaderID, LeaderAddr: nl.LeaderAddr}
	}
	return &ErrorDetail{Kind: types.ErrTransport, Message: err.Error()}
}

func resultDetail(result types.CommandResult) *ErrorDetail {
	if result.OK() {
		return nil
	}
	return &ErrorDetail{Kind: result.Kind, Message: result.Message}
}

func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if req.Username == "" {
		return &RegisterResponse{Error: &ErrorDetail{Kind: types.ErrInvalidArgument, Message: "username required"}}, nil
	}

	result, err := s.node.Propose(types.Command{
		Op: types.OpRegister,
		Register: &types.RegisterCommand{
			Username:     req.Username,
			PasswordHash: req.PasswordHash,
			Timestamp:    time.Now(),
		},
	})
	if err != nil {
		return &RegisterResponse{Error: notLeaderDetail(err)}, nil
	}
	return &RegisterResponse{Error: resultDetail(result)}, nil
}

// Login verifies credentials against local state (safe on any replica,
// since state is replicated) and reports the caller's current unread
// count. If this node is the leader, it also proposes a LoginCommand to
// record the login timestamp, but does not wait for it to commit: a
// client should never have to pay raft's latency just to find out whether
// their password was right.
func (s *Server) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if !s.node.Machine().VerifyPassword(req.Username, req.PasswordHash) {
		return &LoginResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: "invalid credentials"}}, nil
	}

	unread, err := s.node.Machine().CountUnread(req.Username)
	if err != nil {
		return &LoginResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: err.Error()}}, nil
	}

	if s.node.IsLeader() {
		username := req.Username
		go func() {
			if _, err := s.node.Propose(types.Command{
				Op:    types.OpLogin,
				Login: &types.LoginCommand{Username: username, Timestamp: time.Now()},
			}); err != nil {
				log.WithUsername(username).Debug().Err(err).Msg("best-effort login propose failed")
			}
		}()
	}

	return &LoginResponse{UnreadCount: unread}, nil
}

func (s *Server) ListAccounts(ctx context.Context, req *ListAccountsRequest) (*ListAccountsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	usernames, total, err := s.node.Machine().ListAccounts(req.Pattern, page, req.PerPage)
	if err != nil {
		return &ListAccountsResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: err.Error()}}, nil
	}
	return &ListAccountsResponse{Usernames: usernames, Total: total}, nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if req.Recipient == "" {
		return &SendMessageResponse{Error: &ErrorDetail{Kind: types.ErrInvalidArgument, Message: "recipient required"}}, nil
	}

	result, err := s.node.Propose(types.Command{
		Op: types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{
			Sender:    req.Sender,
			Recipient: req.Recipient,
			Content:   req.Content,
			Timestamp: time.Now(),
		},
	})
	if err != nil {
		return &SendMessageResponse{Error: notLeaderDetail(err)}, nil
	}
	return &SendMessageResponse{MessageID: result.MessageID, Error: resultDetail(result)}, nil
}

func (s *Server) GetMessages(ctx context.Context, req *GetMessagesRequest) (*GetMessagesResponse, error) {
	msgs, err := s.node.Machine().GetMessages(req.Username, req.Limit)
	if err != nil {
		return &GetMessagesResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: err.Error()}}, nil
	}
	return &GetMessagesResponse{Messages: msgs}, nil
}

func (s *Server) MarkAsRead(ctx context.Context, req *MarkAsReadRequest) (*MarkAsReadResponse, error) {
	if len(req.IDs) == 0 {
		return &MarkAsReadResponse{Error: &ErrorDetail{Kind: types.ErrInvalidArgument, Message: "no ids given"}}, nil
	}
	result, err := s.node.Propose(types.Command{
		Op:         types.OpMarkAsRead,
		MarkAsRead: &types.MarkAsReadCommand{Actor: req.Username, IDs: req.IDs},
	})
	if err != nil {
		return &MarkAsReadResponse{Error: notLeaderDetail(err)}, nil
	}
	return &MarkAsReadResponse{Count: result.Count, Error: resultDetail(result)}, nil
}

func (s *Server) DeleteMessages(ctx context.Context, req *DeleteMessagesRequest) (*DeleteMessagesResponse, error) {
	if len(req.IDs) == 0 {
		return &DeleteMessagesResponse{Error: &ErrorDetail{Kind: types.ErrInvalidArgument, Message: "no ids given"}}, nil
	}
	result, err := s.node.Propose(types.Command{
		Op:             types.OpDeleteMessages,
		DeleteMessages: &types.DeleteMessagesCommand{Actor: req.Username, IDs: req.IDs},
	})
	if err != nil {
		return &DeleteMessagesResponse{Error: notLeaderDetail(err)}, nil
	}
	return &DeleteMessagesResponse{Count: result.Count, Error: resultDetail(result)}, nil
}

func (s *Server) DeleteAccount(ctx context.Context, req *DeleteAccountRequest) (*DeleteAccountResponse, error) {
	result, err := s.node.Propose(types.Command{
		Op:            types.OpDeleteAccount,
		DeleteAccount: &types.DeleteAccountCommand{Username: req.Username},
	})
	if err != nil {
		return &DeleteAccountResponse{Error: notLeaderDetail(err)}, nil
	}
	return &DeleteAccountResponse{Error: resultDetail(result)}, nil
}

// Join validates the token and, if this node is the leader, admits the
// requesting node as a raft voter.
func (s *Server) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	if !s.node.IsLeader() {
		return &JoinResponse{Error: notLeaderDetail(&consensus.ErrNotLeader{LeaderID: s.node.LeaderID(), LeaderAddr: s.node.LeaderAddr()})}, nil
	}
	if err := s.node.Tokens().ValidateToken(req.Token); err != nil {
		return &JoinResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: err.Error()}}, nil
	}
	if err := s.node.AddVoter(req.NodeID, req.Addr); err != nil {
		return &JoinResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: err.Error()}}, nil
	}
	// This handler only runs on the leader (checked above), so the
	// propose below always has someone to apply it; no bounded wait for
	// leadership is needed the way Bootstrap's self-advertisement does.
	if _, err := s.node.Propose(types.Command{
		Op:            types.OpAdvertiseNode,
		AdvertiseNode: &types.AdvertiseNodeCommand{NodeID: req.NodeID, RPCAddr: req.RPCAddr},
	}); err != nil {
		return &JoinResponse{Error: &ErrorDetail{Kind: types.ErrPreconditionFailed, Message: err.Error()}}, nil
	}
	return &JoinResponse{}, nil
}

// streamMessagesServer is the subset of grpc.ServerStream StreamMessages
// needs; declared narrowly so it's easy to fake in tests.
type streamMessagesServer interface {
	Context() context.Context
	SendMsg(m interface{}) error
}

// StreamMessages subscribes to new messages for req.Username and pushes
// each one to stream as it is delivered, until the client disconnects.
func (s *Server) StreamMessages(req *StreamMessagesRequest, stream streamMessagesServer) error {
	sub := s.node.Notifier().Subscribe(req.Username, req.ResumeAfterID)
	defer s.node.Notifier().Unsubscribe(req.Username, sub)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
