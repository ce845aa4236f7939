// Package cluster exercises raftchat end to end: several real nodes, each
// with its own raft instance and gRPC listener on loopback, wired together
// the same way cmd/chatnode does it, driven only through pkg/client the way
// a real caller would.
package cluster

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/raftchat/raftchat/pkg/client"
	"github.com/raftchat/raftchat/pkg/consensus"
	"github.com/raftchat/raftchat/pkg/rpc"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type testNode struct {
	id       string
	bindAddr string
	rpcAddr  string
	node     *consensus.Node
	grpcSrv  *grpc.Server
}

func startNode(t *testing.T, id, bindAddr, rpcAddr string) *testNode {
	t.Helper()

	node, err := consensus.New(consensus.Config{ID: id, BindAddr: bindAddr, RPCAddr: rpcAddr, DataDir: t.TempDir()})
	require.NoError(t, err)

	server := rpc.NewServer(node)
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(rpc.RequestIDInterceptor(), rpc.MetricsInterceptor()))
	rpc.RegisterChatServiceServer(grpcSrv, server)

	lis, err := net.Listen("tcp", rpcAddr)
	require.NoError(t, err)

	go func() { _ = grpcSrv.Serve(lis) }()

	tn := &testNode{id: id, bindAddr: bindAddr, rpcAddr: rpcAddr, node: node, grpcSrv: grpcSrv}
	t.Cleanup(func() {
		grpcSrv.Stop()
		_ = node.Shutdown()
	})
	return tn
}

// bootstrapCluster brings up a leader and n-1 followers that join it through
// a real Join RPC round trip, and waits for every node to agree on cluster
// size before returning.
func bootstrapCluster(t *testing.T, n int, basePort int) []*testNode {
	t.Helper()

	leaderBind := fmt.Sprintf("127.0.0.1:%d", basePort)
	leaderRPC := fmt.Sprintf("127.0.0.1:%d", basePort+1)
	leader := startNode(t, "node-1", leaderBind, leaderRPC)
	require.NoError(t, leader.node.Bootstrap())
	require.Eventually(t, leader.node.IsLeader, 5*time.Second, 10*time.Millisecond)

	token, err := leader.node.Tokens().GenerateToken(time.Hour)
	require.NoError(t, err)

	nodes := []*testNode{leader}
	for i := 2; i <= n; i++ {
		id := fmt.Sprintf("node-%d", i)
		bindAddr := fmt.Sprintf("127.0.0.1:%d", basePort+(i-1)*10)
		rpcAddr := fmt.Sprintf("127.0.0.1:%d", basePort+(i-1)*10+1)
		tn := startNode(t, id, bindAddr, rpcAddr)

		joiner, err := client.New([]string{leaderRPC})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		require.NoError(t, tn.node.Join(ctx, leaderRPC, token.Token, joiner))
		cancel()
		joiner.Close()

		nodes = append(nodes, tn)
	}

	require.Eventually(t, func() bool {
		return leader.node.PeerCount() == n
	}, 5*time.Second, 20*time.Millisecond, "cluster never reached %d voters", n)

	return nodes
}

func rpcAddrs(nodes []*testNode) []string {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.rpcAddr
	}
	return addrs
}

func TestThreeNodeClusterReplicatesWrites(t *testing.T) {
	nodes := bootstrapCluster(t, 3, 19500)

	c, err := client.New(rpcAddrs(nodes))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Register("alice", []byte("hash")))
	require.NoError(t, c.Register("bob", []byte("hash")))

	_, err = c.SendMessage("alice", "bob", "hello from the cluster")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if !n.node.Machine().AccountExists("alice") || !n.node.Machine().AccountExists("bob") {
				return false
			}
			msgs, err := n.node.Machine().GetMessages("bob", 10)
			if err != nil || len(msgs) != 1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond, "writes never replicated to every follower")
}

func TestClientFollowsLeaderRedirect(t *testing.T) {
	nodes := bootstrapCluster(t, 3, 19600)

	var leaderAddr string
	for _, n := range nodes {
		if n.node.IsLeader() {
			leaderAddr = n.rpcAddr
		}
	}
	require.NotEmpty(t, leaderAddr)

	var followerAddr string
	for _, n := range nodes {
		if n.rpcAddr != leaderAddr {
			followerAddr = n.rpcAddr
			break
		}
	}
	require.NotEmpty(t, followerAddr)

	// Point the client only at a follower; it must discover and redirect to
	// the real leader rather than failing outright.
	c, err := client.New([]string{followerAddr})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Register("carol", []byte("hash")))
}

func TestLeaderFailoverElectsNewLeader(t *testing.T) {
	nodes := bootstrapCluster(t, 3, 19700)

	var leader *testNode
	for _, n := range nodes {
		if n.node.IsLeader() {
			leader = n
		}
	}
	require.NotNil(t, leader)

	require.NoError(t, leader.node.Shutdown())
	leader.grpcSrv.Stop()

	var remaining []*testNode
	for _, n := range nodes {
		if n != leader {
			remaining = append(remaining, n)
		}
	}

	require.Eventually(t, func() bool {
		for _, n := range remaining {
			if n.node.IsLeader() {
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond, "no new leader elected after original leader shutdown")

	c, err := client.New(rpcAddrs(remaining))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Register("dave", []byte("hash")))
}
