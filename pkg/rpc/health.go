package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/raftchat/raftchat/pkg/consensus"
	"github.com/raftchat/raftchat/pkg/metrics"
)

// HealthServer provides HTTP health check endpoints alongside the gRPC
// service: /health for liveness, /ready for raft/storage readiness, and
// /metrics for Prometheus scraping.
type HealthServer struct {
	node *consensus.Node
	mux  *http.ServeMux
}

// NewHealthServer builds a health check HTTP server for node. node may be
// nil before a node has started raft; every check reports not-ready in
// that case.
func NewHealthServer(node *consensus.Node) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{node: node, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start runs the health check HTTP server until it fails or is shut down.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready response body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness probe: it returns 200 as long as the process
// can answer HTTP requests at all, regardless of raft state.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "healthy", Timestamp: time.Now()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler is a readiness probe: it reports whether raft has an elected
// leader and whether the local state machine answers reads.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.node != nil {
		if hs.node.IsLeader() {
			checks["raft"] = "leader"
		} else if leaderAddr := hs.node.LeaderAddr(); leaderAddr != "" {
			checks["raft"] = fmt.Sprintf("follower (leader: %s)", leaderAddr)
		} else {
			checks["raft"] = "no leader elected"
			ready = false
			message = "waiting for leader election"
		}
	} else {
		checks["raft"] = "not initialized"
		ready = false
		message = "node not initialized"
	}

	if hs.node != nil {
		if _, _, err := hs.node.Machine().ListAccounts("", 1, 1); err != nil {
			checks["storage"] = fmt.Sprintf("error: %v", err)
			ready = false
			if message == "" {
				message = "storage not accessible"
			}
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not initialized"
		ready = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
