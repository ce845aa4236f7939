package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/raftchat/raftchat/pkg/metrics"
	"github.com/raftchat/raftchat/pkg/notifier"
	"github.com/raftchat/raftchat/pkg/state"
	"github.com/raftchat/raftchat/pkg/storage"
	"github.com/raftchat/raftchat/pkg/types"
)

// Raft timeouts tuned for sub-second follower failure detection on a LAN,
// well inside the few-second failover budget a chat client would notice.
const (
	heartbeatTimeout   = 150 * time.Millisecond
	electionTimeout    = 150 * time.Millisecond
	commitTimeout      = 25 * time.Millisecond
	leaderLeaseTimeout = 75 * time.Millisecond
	applyTimeout       = 5 * time.Second
)

// Joiner requests that an existing cluster member add this node as a
// voter. It is satisfied by pkg/client.Client; consensus never dials a
// connection itself so it stays independent of the RPC wire format.
type Joiner interface {
	RequestJoin(ctx context.Context, leaderAddr, nodeID, addr, rpcAddr, token string) error
}

// Node is one replica of the chat cluster: a raft instance, the state
// machine it drives, and the storage and notifier that back it.
type Node struct {
	id       string
	bindAddr string
	rpcAddr  string
	dataDir  string

	raft     *raft.Raft
	fsm      *chatFSM
	store    storage.Store
	machine  *state.Machine
	notifier *notifier.Notifier
	tokens   *TokenManager
}

// Config configures a new Node.
type Config struct {
	ID       string
	BindAddr string
	// RPCAddr is the chat gRPC address this node serves on. Raft never
	// learns it on its own — raft's own configuration only ever carries
	// BindAddr — so it has to be advertised into the cluster separately
	// (see advertiseSelf and the Join RPC) for LeaderAddr to be useful to
	// clients.
	RPCAddr string
	DataDir string
}

// New opens the node's storage and builds its state machine, but does not
// yet start raft; call Bootstrap or Join to do that.
func New(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	machine := state.New(store)
	notif := notifier.New()

	return &Node{
		id:       cfg.ID,
		bindAddr: cfg.BindAddr,
		rpcAddr:  cfg.RPCAddr,
		dataDir:  cfg.DataDir,
		fsm:      newChatFSM(machine, store, notif),
		store:    store,
		machine:  machine,
		notifier: notif,
		tokens:   NewTokenManager(),
	}, nil
}

// Machine returns the node's state machine, for read queries by the RPC
// layer.
func (n *Node) Machine() *state.Machine { return n.machine }

// Notifier returns the node's streaming notifier.
func (n *Node) Notifier() *notifier.Notifier { return n.notifier }

// Tokens returns the node's join-token manager.
func (n *Node) Tokens() *TokenManager { return n.tokens }

func (n *Node) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(n.id)
	config.HeartbeatTimeout = heartbeatTimeout
	config.ElectionTimeout = electionTimeout
	config.CommitTimeout = commitTimeout
	config.LeaderLeaseTimeout = leaderLeaseTimeout
	return config
}

func (n *Node) newRaft() (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(filepath.Join(n.dataDir, "snapshots"), 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(n.raftConfig(), n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}
	return r, nil
}

// Bootstrap starts a brand new single-node cluster with this node as its
// only member.
func (n *Node) Bootstrap() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	config := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(n.id), Address: raft.ServerAddress(n.bindAddr)},
		},
	}
	if err := n.raft.BootstrapCluster(config).Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	return n.advertiseSelf()
}

// advertiseSelf proposes an AdvertiseNode command recording this node's
// gRPC address. It can only be proposed once this node holds leadership,
// which a freshly bootstrapped single-node cluster reaches almost
// immediately but not instantaneously, so this polls briefly rather than
// proposing straight away.
func (n *Node) advertiseSelf() error {
	deadline := time.Now().Add(5 * time.Second)
	for !n.IsLeader() {
		if time.Now().After(deadline) {
			return fmt.Errorf("advertise self: did not become leader in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err := n.Propose(types.Command{
		Op:            types.OpAdvertiseNode,
		AdvertiseNode: &types.AdvertiseNodeCommand{NodeID: n.id, RPCAddr: n.rpcAddr},
	})
	return err
}

// Join starts this node's raft instance and asks the existing cluster,
// reached through joiner at leaderAddr, to add it as a voter. Unlike
// Bootstrap, it never calls BootstrapCluster itself: a node that isn't the
// first member must be added by the current leader via AddVoter so every
// replica agrees on the new configuration through the log, not by fiat.
func (n *Node) Join(ctx context.Context, leaderAddr, token string, joiner Joiner) error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	if err := joiner.RequestJoin(ctx, leaderAddr, n.id, n.bindAddr, n.rpcAddr, token); err != nil {
		return fmt.Errorf("request join: %w", err)
	}
	return nil
}

// AddVoter adds nodeID at addr to the cluster. Only the leader can do this;
// hashicorp/raft itself rejects the call otherwise.
func (n *Node) AddVoter(nodeID, addr string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not started")
	}
	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes nodeID from the cluster.
func (n *Node) RemoveServer(nodeID string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not started")
	}
	future := n.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this node currently holds raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LeaderID returns the node id of the current leader, or "" if unknown.
func (n *Node) LeaderID() string {
	if n.raft == nil {
		return ""
	}
	_, id := n.raft.LeaderWithID()
	return string(id)
}

// LeaderAddr returns the chat gRPC address of the current leader, or "" if
// unknown or not yet advertised. Raft's own Leader() call only ever returns
// a raft transport address, which is useless to a gRPC client, so this
// resolves through the replicated node-id to gRPC-address registry instead.
func (n *Node) LeaderAddr() string {
	id := n.LeaderID()
	if id == "" {
		return ""
	}
	return n.fsm.rpcAddrFor(id)
}

// PeerCount returns the number of servers in the current raft
// configuration.
func (n *Node) PeerCount() int {
	if n.raft == nil {
		return 0
	}
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

// LastLogIndex returns the raft log's last index.
func (n *Node) LastLogIndex() uint64 {
	if n.raft == nil {
		return 0
	}
	return n.raft.LastIndex()
}

// AppliedIndex returns the raft log's last applied index.
func (n *Node) AppliedIndex() uint64 {
	if n.raft == nil {
		return 0
	}
	return n.raft.AppliedIndex()
}

// AccountCount implements metrics.ClusterStats.
func (n *Node) AccountCount() (int, error) {
	_, total, err := n.machine.ListAccounts("", 1, 0)
	return total, err
}

// UnreadMessageCount implements metrics.ClusterStats by summing unread
// counts across every account. It is only sampled periodically (see
// pkg/metrics.Collector) because it is a full scan.
func (n *Node) UnreadMessageCount() (int, error) {
	usernames, _, err := n.machine.ListAccounts("", 1, 0)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, u := range usernames {
		count, err := n.machine.CountUnread(u)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// SubscriberCount implements metrics.ClusterStats.
func (n *Node) SubscriberCount() int {
	return n.notifier.SubscriberCount()
}

var _ metrics.ClusterStats = (*Node)(nil)

// ErrNotLeader is returned by Propose when this node is not the raft
// leader. LeaderID/LeaderAddr carry the redirect hint, empty if no leader
// is currently known.
type ErrNotLeader struct {
	LeaderID   string
	LeaderAddr string
}

func (e *ErrNotLeader) Error() string {
	if e.LeaderAddr == "" {
		return "not leader: no leader known"
	}
	return fmt.Sprintf("not leader: current leader is %s at %s", e.LeaderID, e.LeaderAddr)
}

// Propose appends cmd to the raft log and waits for it to be applied,
// returning the state machine's result. It fails fast with ErrNotLeader
// rather than silently forwarding the command anywhere: leader discovery
// and retry belong to the client runtime (pkg/client), not to a raft node.
func (n *Node) Propose(cmd types.Command) (types.CommandResult, error) {
	if n.raft == nil {
		return types.CommandResult{}, &ErrNotLeader{}
	}
	if n.raft.State() != raft.Leader {
		return types.CommandResult{}, &ErrNotLeader{LeaderID: n.LeaderID(), LeaderAddr: n.LeaderAddr()}
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	data, err := json.Marshal(cmd)
	if err != nil {
		return types.CommandResult{}, fmt.Errorf("marshal command: %w", err)
	}

	future := n.raft.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		if err == raft.ErrLeadershipLost || err == raft.ErrEnqueueTimeout {
			return types.CommandResult{Kind: types.ErrTimeout}, nil
		}
		if err == raft.ErrNotLeader {
			return types.CommandResult{}, &ErrNotLeader{LeaderID: n.LeaderID(), LeaderAddr: n.LeaderAddr()}
		}
		return types.CommandResult{}, err
	}

	result, ok := future.Response().(types.CommandResult)
	if !ok {
		return types.CommandResult{}, fmt.Errorf("unexpected apply response type %T", future.Response())
	}
	return result, nil
}

// Shutdown stops raft and closes storage.
func (n *Node) Shutdown() error {
	if n.raft != nil {
		if err := n.raft.Shutdown().Error(); err != nil {
			return err
		}
	}
	return n.store.Close()
}
