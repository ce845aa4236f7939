package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raftchat/raftchat/pkg/client"
	"github.com/raftchat/raftchat/pkg/consensus"
	"github.com/raftchat/raftchat/pkg/log"
	"github.com/raftchat/raftchat/pkg/metrics"
	"github.com/raftchat/raftchat/pkg/rpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chatnode",
	Short:   "chatnode runs one replica of a raftchat cluster",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("chatnode version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(joinCmd)

	bootstrapCmd.Flags().String("node-id", "node-1", "Unique node ID")
	bootstrapCmd.Flags().String("bind-addr", "127.0.0.1:7946", "Address for raft communication")
	bootstrapCmd.Flags().String("rpc-addr", "127.0.0.1:8080", "Address for the gRPC chat service")
	bootstrapCmd.Flags().String("health-addr", "127.0.0.1:9090", "Address for health/metrics HTTP endpoints")
	bootstrapCmd.Flags().String("data-dir", "./chatnode-data", "Data directory for cluster state")

	joinCmd.Flags().String("node-id", "node-2", "Unique node ID")
	joinCmd.Flags().String("bind-addr", "127.0.0.1:7947", "Address for raft communication")
	joinCmd.Flags().String("rpc-addr", "127.0.0.1:8081", "Address for the gRPC chat service")
	joinCmd.Flags().String("health-addr", "127.0.0.1:9091", "Address for health/metrics HTTP endpoints")
	joinCmd.Flags().String("data-dir", "./chatnode-data-2", "Data directory for cluster state")
	joinCmd.Flags().String("leader-rpc-addr", "", "gRPC address of an existing cluster member")
	joinCmd.Flags().String("token", "", "Join token issued by the leader")
	_ = joinCmd.MarkFlagRequired("leader-rpc-addr")
	_ = joinCmd.MarkFlagRequired("token")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Start a brand new single-node cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
		healthAddr, _ := cmd.Flags().GetString("health-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		node, err := consensus.New(consensus.Config{ID: nodeID, BindAddr: bindAddr, RPCAddr: rpcAddr, DataDir: dataDir})
		if err != nil {
			return fmt.Errorf("create node: %w", err)
		}
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		log.WithNodeID(nodeID).Info().Str("bind_addr", bindAddr).Msg("bootstrapped new cluster")

		token, err := node.Tokens().GenerateToken(24 * time.Hour)
		if err != nil {
			return fmt.Errorf("generate join token: %w", err)
		}
		log.WithNodeID(nodeID).Info().Str("token", token.Token).Msg("join token (valid 24h)")
		fmt.Printf("Join token (valid 24h): %s\n", token.Token)
		fmt.Printf("To add another node: chatnode join --leader-rpc-addr %s --token %s\n", rpcAddr, token.Token)

		return serve(node, rpcAddr, healthAddr)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Start a node and join an existing cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
		healthAddr, _ := cmd.Flags().GetString("health-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		leaderRPCAddr, _ := cmd.Flags().GetString("leader-rpc-addr")
		token, _ := cmd.Flags().GetString("token")

		node, err := consensus.New(consensus.Config{ID: nodeID, BindAddr: bindAddr, RPCAddr: rpcAddr, DataDir: dataDir})
		if err != nil {
			return fmt.Errorf("create node: %w", err)
		}

		joiner, err := client.New([]string{leaderRPCAddr})
		if err != nil {
			return fmt.Errorf("create joiner: %w", err)
		}
		defer joiner.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := node.Join(ctx, leaderRPCAddr, token, joiner); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
		log.WithNodeID(nodeID).Info().Str("leader_rpc_addr", leaderRPCAddr).Msg("joined cluster")

		return serve(node, rpcAddr, healthAddr)
	},
}

// serve starts the gRPC chat service, the health/metrics HTTP server, and
// the periodic metrics collector, then blocks until an interrupt signal or
// a server error.
func serve(node *consensus.Node, rpcAddr, healthAddr string) error {
	server := rpc.NewServer(node)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(rpc.RequestIDInterceptor(), rpc.MetricsInterceptor()))
	rpc.RegisterChatServiceServer(grpcServer, server)

	lis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", rpcAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	log.WithComponent("rpc").Info().Str("rpc_addr", rpcAddr).Msg("gRPC chat service listening")

	healthServer := rpc.NewHealthServer(node)
	go func() {
		if err := healthServer.Start(healthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	log.WithComponent("health").Info().Str("health_addr", healthAddr).Msg("health/metrics endpoints listening")

	collector := metrics.NewCollector(node)
	collector.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Errorf("server error", err)
	}

	collector.Stop()
	grpcServer.GracefulStop()
	return node.Shutdown()
}
