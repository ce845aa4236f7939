package consensus

import (
	"testing"
	"time"

	"github.com/raftchat/raftchat/pkg/types"
	"github.com/stretchr/testify/require"
)

func newBootstrappedNode(t *testing.T, bindAddr string) *Node {
	t.Helper()

	n, err := New(Config{ID: "node-1", BindAddr: bindAddr, DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, n.Bootstrap())

	require.Eventually(t, n.IsLeader, 5*time.Second, 10*time.Millisecond, "node never became leader")

	t.Cleanup(func() {
		_ = n.Shutdown()
	})
	return n
}

func TestBootstrapBecomesLeader(t *testing.T) {
	n := newBootstrappedNode(t, "127.0.0.1:19201")
	require.True(t, n.IsLeader())
	require.Equal(t, "node-1", n.LeaderID())
}

func TestLeaderAddrResolvesToRPCAddrNotBindAddr(t *testing.T) {
	n, err := New(Config{ID: "node-1", BindAddr: "127.0.0.1:19209", RPCAddr: "127.0.0.1:28209", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, n.Bootstrap())
	t.Cleanup(func() { _ = n.Shutdown() })

	require.Eventually(t, n.IsLeader, 5*time.Second, 10*time.Millisecond, "node never became leader")

	require.Eventually(t, func() bool {
		return n.LeaderAddr() == "127.0.0.1:28209"
	}, 5*time.Second, 10*time.Millisecond, "LeaderAddr never resolved to the advertised gRPC address")

	// Must never be the raft bind address itself.
	require.NotEqual(t, "127.0.0.1:19209", n.LeaderAddr())
}

func TestProposeRegisterIsVisibleToReads(t *testing.T) {
	n := newBootstrappedNode(t, "127.0.0.1:19202")

	result, err := n.Propose(types.Command{
		Op: types.OpRegister,
		Register: &types.RegisterCommand{
			Username:     "alice",
			PasswordHash: []byte("hash"),
			Timestamp:    time.Now(),
		},
	})
	require.NoError(t, err)
	require.True(t, result.OK())

	require.True(t, n.Machine().AccountExists("alice"))
}

func TestProposeSendMessageAssignsSequentialIDs(t *testing.T) {
	n := newBootstrappedNode(t, "127.0.0.1:19203")

	for _, username := range []string{"alice", "bob"} {
		_, err := n.Propose(types.Command{
			Op: types.OpRegister,
			Register: &types.RegisterCommand{
				Username:     username,
				PasswordHash: []byte("hash"),
				Timestamp:    time.Now(),
			},
		})
		require.NoError(t, err)
	}

	var lastID uint64
	for i := 0; i < 3; i++ {
		result, err := n.Propose(types.Command{
			Op: types.OpSendMessage,
			SendMessage: &types.SendMessageCommand{
				Sender:    "alice",
				Recipient: "bob",
				Content:   "hi",
				Timestamp: time.Now(),
			},
		})
		require.NoError(t, err)
		require.True(t, result.OK())
		require.Greater(t, result.MessageID, lastID)
		lastID = result.MessageID
	}
}

func TestProposeFailsBeforeRaftStarted(t *testing.T) {
	n, err := New(Config{ID: "node-x", BindAddr: "127.0.0.1:19204", DataDir: t.TempDir()})
	require.NoError(t, err)

	_, err = n.Propose(types.Command{Op: types.OpRegister})
	require.Error(t, err)

	var notLeader *ErrNotLeader
	require.ErrorAs(t, err, &notLeader)
}
