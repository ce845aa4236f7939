package consensus

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/raftchat/raftchat/pkg/notifier"
	"github.com/raftchat/raftchat/pkg/state"
	"github.com/raftchat/raftchat/pkg/storage"
	"github.com/raftchat/raftchat/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestFSM(t *testing.T) (*chatFSM, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newChatFSM(state.New(store), store, notifier.New()), store
}

func applyCommand(t *testing.T, f *chatFSM, cmd types.Command) types.CommandResult {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	result, ok := f.Apply(&raft.Log{Data: data}).(types.CommandResult)
	require.True(t, ok)
	return result
}

func TestApplyAdvertiseNodeRecordsRPCAddr(t *testing.T) {
	f, _ := newTestFSM(t)

	result := applyCommand(t, f, types.Command{
		Op:            types.OpAdvertiseNode,
		AdvertiseNode: &types.AdvertiseNodeCommand{NodeID: "node-2", RPCAddr: "127.0.0.1:8081"},
	})
	require.True(t, result.OK())
	require.Equal(t, "127.0.0.1:8081", f.rpcAddrFor("node-2"))
	require.Empty(t, f.rpcAddrFor("node-3"))
}

// restoreSnapshot round-trips f through Snapshot/Persist/Restore into
// target, the way hashicorp/raft does for InstallSnapshot.
func restoreSnapshot(t *testing.T, f *chatFSM, target *chatFSM) {
	t.Helper()

	snap, err := f.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	sink := &fakeSnapshotSink{Buffer: &buf}
	require.NoError(t, snap.Persist(sink))

	require.NoError(t, target.Restore(io.NopCloser(&buf)))
}

type fakeSnapshotSink struct {
	*bytes.Buffer
}

func (s *fakeSnapshotSink) ID() string    { return "test" }
func (s *fakeSnapshotSink) Cancel() error { return nil }
func (s *fakeSnapshotSink) Close() error  { return nil }

func TestRestoreIsIdempotentOverNonEmptyStore(t *testing.T) {
	source, _ := newTestFSM(t)
	applyCommand(t, source, types.Command{
		Op:       types.OpRegister,
		Register: &types.RegisterCommand{Username: "alice", PasswordHash: []byte("hash")},
	})
	sendResult := applyCommand(t, source, types.Command{
		Op:          types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "alice", Content: "hi"},
	})
	require.True(t, sendResult.OK())
	applyCommand(t, source, types.Command{
		Op:            types.OpAdvertiseNode,
		AdvertiseNode: &types.AdvertiseNodeCommand{NodeID: "node-1", RPCAddr: "127.0.0.1:8080"},
	})

	// target already holds a conflicting account row before the restore,
	// the way a lagging follower being caught up through InstallSnapshot
	// would: CreateAccount on a non-empty store must not make Restore fail.
	target, _ := newTestFSM(t)
	applyCommand(t, target, types.Command{
		Op:       types.OpRegister,
		Register: &types.RegisterCommand{Username: "alice", PasswordHash: []byte("stale")},
	})

	restoreSnapshot(t, source, target)

	require.True(t, target.machine.AccountExists("alice"))
	require.True(t, target.machine.VerifyPassword("alice", []byte("hash")))
	msgs, err := target.machine.GetMessages("alice", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "127.0.0.1:8080", target.rpcAddrFor("node-1"))
}
