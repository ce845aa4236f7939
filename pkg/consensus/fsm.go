package consensus

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/raftchat/raftchat/pkg/notifier"
	"github.com/raftchat/raftchat/pkg/state"
	"github.com/raftchat/raftchat/pkg/storage"
	"github.com/raftchat/raftchat/pkg/types"
)

// chatFSM adapts state.Machine to raft.FSM. Apply runs on the single
// goroutine hashicorp/raft uses to replay the log, so state.Machine's own
// locking exists only to let reads proceed concurrently with it, not to
// protect against concurrent Apply calls.
//
// nodeAddrs is cluster membership metadata, not chat domain data: raft
// itself only ever knows a member's transport (bind) address, never its
// chat gRPC address, so that mapping is carried through the log as an
// AdvertiseNode command and kept here rather than in state.Machine.
type chatFSM struct {
	machine  *state.Machine
	store    storage.Store
	notifier *notifier.Notifier

	mu        sync.RWMutex
	nodeAddrs map[string]string
}

func newChatFSM(machine *state.Machine, store storage.Store, n *notifier.Notifier) *chatFSM {
	return &chatFSM{machine: machine, store: store, notifier: n, nodeAddrs: make(map[string]string)}
}

// rpcAddrFor returns the chat gRPC address advertised for nodeID, or "" if
// none has been recorded yet.
func (f *chatFSM) rpcAddrFor(nodeID string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nodeAddrs[nodeID]
}

// Apply decodes the committed log entry, applies it to the state machine,
// and returns the resulting CommandResult. A successful SendMessage also
// triggers a best-effort push through the notifier; delivery happens after
// commit, never as part of it, so a slow or absent subscriber can never
// hold up replication.
func (f *chatFSM) Apply(log *raft.Log) interface{} {
	var cmd types.Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return types.CommandResult{Kind: types.ErrInvalidArgument, Message: fmt.Sprintf("corrupt log entry: %v", err)}
	}

	if cmd.Op == types.OpAdvertiseNode {
		f.mu.Lock()
		f.nodeAddrs[cmd.AdvertiseNode.NodeID] = cmd.AdvertiseNode.RPCAddr
		f.mu.Unlock()
		return types.CommandResult{}
	}

	result := f.machine.Apply(cmd)

	if result.OK() && cmd.Op == types.OpSendMessage && f.notifier != nil {
		f.notifier.Deliver(&types.Message{
			ID:        result.MessageID,
			Sender:    cmd.SendMessage.Sender,
			Recipient: cmd.SendMessage.Recipient,
			Content:   cmd.SendMessage.Content,
			Timestamp: cmd.SendMessage.Timestamp,
		})
	}

	return result
}

// chatSnapshot is the point-in-time export raft asks for during log
// compaction. Restoring from it re-creates every account and message row
// and then forces the message-id counter back to where it needs to be so
// ids stay sequential after the restore.
type chatSnapshot struct {
	Accounts      []*types.Account  `json:"accounts"`
	Messages      []*types.Message  `json:"messages"`
	NextMessageID uint64            `json:"next_message_id"`
	NodeAddrs     map[string]string `json:"node_addrs"`
}

func (f *chatFSM) Snapshot() (raft.FSMSnapshot, error) {
	accounts, err := f.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var messages []*types.Message
	for _, acc := range accounts {
		msgs, err := f.store.ListMessagesByRecipient(acc.Username)
		if err != nil {
			return nil, fmt.Errorf("list messages for %s: %w", acc.Username, err)
		}
		messages = append(messages, msgs...)
	}

	next, err := f.store.NextMessageID()
	if err != nil {
		return nil, fmt.Errorf("read message id counter: %w", err)
	}

	f.mu.RLock()
	nodeAddrs := make(map[string]string, len(f.nodeAddrs))
	for id, addr := range f.nodeAddrs {
		nodeAddrs[id] = addr
	}
	f.mu.RUnlock()

	return &chatSnapshot{Accounts: accounts, Messages: messages, NextMessageID: next, NodeAddrs: nodeAddrs}, nil
}

// Restore replaces the store's entire contents with the snapshot. It must
// be idempotent over a non-empty store: a lagging follower being caught up
// through InstallSnapshot already has accounts and messages on disk, so
// restoring has to clear them first rather than insert on top of them.
func (f *chatFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap chatSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	if err := f.store.Reset(); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	for _, acc := range snap.Accounts {
		if err := f.store.CreateAccount(acc); err != nil {
			return fmt.Errorf("restore account %s: %w", acc.Username, err)
		}
	}
	// Messages are restored directly rather than through state.Machine.Apply
	// so their original ids survive the round trip.
	for _, msg := range snap.Messages {
		if err := f.store.UpdateMessage(msg); err != nil {
			return fmt.Errorf("restore message %d: %w", msg.ID, err)
		}
	}
	if err := f.store.SetNextMessageID(snap.NextMessageID); err != nil {
		return fmt.Errorf("restore message id counter: %w", err)
	}

	f.mu.Lock()
	f.nodeAddrs = make(map[string]string, len(snap.NodeAddrs))
	for id, addr := range snap.NodeAddrs {
		f.nodeAddrs[id] = addr
	}
	f.mu.Unlock()

	return nil
}

func (s *chatSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *chatSnapshot) Release() {}
