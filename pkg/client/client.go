// Package client is a chat cluster client: it dials every known server
// address, tracks which one most recently claimed to be leader, and
// retries a call against the redirect hint whenever a server reports
// ErrNotLeader. Streaming reconnects the same way, resuming from the last
// message id it saw.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raftchat/raftchat/pkg/metrics"
	"github.com/raftchat/raftchat/pkg/rpc"
	"github.com/raftchat/raftchat/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	dialTimeout = 5 * time.Second
	callTimeout = 10 * time.Second
	maxRetries  = 5
	// maxRedirects bounds leader-redirect hops separately from maxRetries:
	// a redirect is an authoritative hint, not a transient failure, so it
	// does not consume retry budget, but an independent cap still exists
	// to stop two servers incorrectly pointing at each other from
	// spinning forever.
	maxRedirects = 10
	backoffBase  = 50 * time.Millisecond
	backoffCap   = 2 * time.Second
)

// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	mu     sync.Mutex
	addrs  []string
	conns  map[string]*grpc.ClientConn
	leader string
}

// New creates a client that starts out guessing addrs[0] is the leader; the
// first redirect corrects it.
func New(addrs []string) (*Client, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("at least one server address is required")
	}
	return &Client{
		addrs:  addrs,
		conns:  make(map[string]*grpc.ClientConn),
		leader: addrs[0],
	}, nil
}

// Close tears down every connection the client has opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) stubFor(addr string) (rpc.ChatServiceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[addr]; ok {
		return rpc.NewChatServiceClient(conn), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.conns[addr] = conn
	return rpc.NewChatServiceClient(conn), nil
}

func (c *Client) currentLeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}

func (c *Client) setLeader(addr string) {
	c.mu.Lock()
	c.leader = addr
	c.mu.Unlock()
}

// backoff returns how long to sleep before retry attempt n (0-based),
// doubling from backoffBase up to backoffCap.
func backoff(n int) time.Duration {
	d := backoffBase << uint(n)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

// call runs fn against the current best-guess leader, following redirects
// and retrying transient failures up to maxRetries times. A leader redirect
// does not itself consume a retry attempt, since it is an authoritative
// hint rather than a transient failure, but is separately bounded by
// maxRedirects so a pair of servers that keep pointing at each other can't
// spin the loop forever. fn must return a non-nil *rpc.ErrorDetail when the
// server rejected the request with a known kind, or nil on success;
// transport-level errors are returned via the second value.
func (c *Client) call(ctx context.Context, fn func(rpc.ChatServiceClient) (*rpc.ErrorDetail, error)) error {
	addr := c.currentLeader()

	attempt := 0
	redirects := 0
	for attempt < maxRetries && redirects < maxRedirects {
		stub, err := c.stubFor(addr)
		if err != nil {
			metrics.ClientRetriesTotal.WithLabelValues("dial_error").Inc()
			addr = c.nextAddr(addr)
			c.sleep(ctx, attempt)
			attempt++
			continue
		}

		detail, err := fn(stub)
		if err != nil {
			metrics.ClientRetriesTotal.WithLabelValues("transport_error").Inc()
			addr = c.nextAddr(addr)
			c.sleep(ctx, attempt)
			attempt++
			continue
		}
		if detail == nil {
			c.setLeader(addr)
			return nil
		}

		switch detail.Kind {
		case types.ErrNotLeader:
			metrics.ClientRetriesTotal.WithLabelValues("redirect").Inc()
			if detail.LeaderAddr != "" {
				addr = detail.LeaderAddr
			} else {
				addr = c.nextAddr(addr)
			}
			redirects++
			continue
		case types.ErrNoLeader, types.ErrTimeout, types.ErrTransport:
			metrics.ClientRetriesTotal.WithLabelValues(string(detail.Kind)).Inc()
			addr = c.nextAddr(addr)
			c.sleep(ctx, attempt)
			attempt++
			continue
		default:
			return fmt.Errorf("%s: %s", detail.Kind, detail.Message)
		}
	}
	return fmt.Errorf("exhausted retries contacting %v", c.addrs)
}

func (c *Client) nextAddr(current string) string {
	for i, a := range c.addrs {
		if a == current {
			return c.addrs[(i+1)%len(c.addrs)]
		}
	}
	return c.addrs[0]
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(backoff(attempt)):
	}
}

// Register creates a new account.
func (c *Client) Register(username string, passwordHash []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.Register(ctx, &rpc.RegisterRequest{Username: username, PasswordHash: passwordHash})
		if err != nil {
			return nil, err
		}
		return resp.Error, nil
	})
}

// Login authenticates and returns the caller's unread message count.
func (c *Client) Login(username string, passwordHash []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var unread int
	err := c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.Login(ctx, &rpc.LoginRequest{Username: username, PasswordHash: passwordHash})
		if err != nil {
			return nil, err
		}
		unread = resp.UnreadCount
		return resp.Error, nil
	})
	return unread, err
}

// ListAccounts lists usernames matching pattern, paginated.
func (c *Client) ListAccounts(pattern string, page, perPage int) ([]string, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var usernames []string
	var total int
	err := c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.ListAccounts(ctx, &rpc.ListAccountsRequest{Pattern: pattern, Page: page, PerPage: perPage})
		if err != nil {
			return nil, err
		}
		usernames, total = resp.Usernames, resp.Total
		return resp.Error, nil
	})
	return usernames, total, err
}

// SendMessage delivers a direct message and returns its assigned id.
func (c *Client) SendMessage(sender, recipient, content string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var id uint64
	err := c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.SendMessage(ctx, &rpc.SendMessageRequest{Sender: sender, Recipient: recipient, Content: content})
		if err != nil {
			return nil, err
		}
		id = resp.MessageID
		return resp.Error, nil
	})
	return id, err
}

// GetMessages fetches username's messages, most recent first, up to limit.
func (c *Client) GetMessages(username string, limit int) ([]*types.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var msgs []*types.Message
	err := c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.GetMessages(ctx, &rpc.GetMessagesRequest{Username: username, Limit: limit})
		if err != nil {
			return nil, err
		}
		msgs = resp.Messages
		return resp.Error, nil
	})
	return msgs, err
}

// MarkAsRead flips Read on ids belonging to username, returning how many
// were actually updated.
func (c *Client) MarkAsRead(username string, ids []uint64) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var count int
	err := c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.MarkAsRead(ctx, &rpc.MarkAsReadRequest{Username: username, IDs: ids})
		if err != nil {
			return nil, err
		}
		count = resp.Count
		return resp.Error, nil
	})
	return count, err
}

// DeleteMessages removes ids where username is sender or recipient.
func (c *Client) DeleteMessages(username string, ids []uint64) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var count int
	err := c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.DeleteMessages(ctx, &rpc.DeleteMessagesRequest{Username: username, IDs: ids})
		if err != nil {
			return nil, err
		}
		count = resp.Count
		return resp.Error, nil
	})
	return count, err
}

// DeleteAccount removes an account and its messages.
func (c *Client) DeleteAccount(username string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.call(ctx, func(stub rpc.ChatServiceClient) (*rpc.ErrorDetail, error) {
		resp, err := stub.DeleteAccount(ctx, &rpc.DeleteAccountRequest{Username: username})
		if err != nil {
			return nil, err
		}
		return resp.Error, nil
	})
}

// RequestJoin implements consensus.Joiner: it dials leaderAddr directly
// (bypassing the redirect-following call helper, since the caller already
// knows who the leader is) and asks it to admit nodeID as a voter at addr,
// advertising rpcAddr as the chat gRPC address the rest of the cluster
// should reach it at.
func (c *Client) RequestJoin(ctx context.Context, leaderAddr, nodeID, addr, rpcAddr, token string) error {
	stub, err := c.stubFor(leaderAddr)
	if err != nil {
		return err
	}
	resp, err := stub.Join(ctx, &rpc.JoinRequest{NodeID: nodeID, Addr: addr, RPCAddr: rpcAddr, Token: token})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
	}
	return nil
}

// Stream subscribes to new messages for username, calling onMessage for
// each one, and transparently reconnects (resuming after the last message
// id seen) if the stream breaks. It blocks until ctx is cancelled.
func (c *Client) Stream(ctx context.Context, username string, resumeAfterID uint64, onMessage func(*types.Message)) error {
	lastID := resumeAfterID
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		addr := c.currentLeader()
		stub, err := c.stubFor(addr)
		if err != nil {
			c.sleep(ctx, attempt)
			attempt++
			continue
		}

		stream, err := stub.StreamMessages(ctx, &rpc.StreamMessagesRequest{Username: username, ResumeAfterID: lastID})
		if err != nil {
			c.sleep(ctx, attempt)
			attempt++
			continue
		}

		attempt = 0
		for {
			msg, err := stream.Recv()
			if err != nil {
				break
			}
			lastID = msg.ID
			onMessage(msg)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.sleep(ctx, attempt)
		attempt++
	}
}
