package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster state metrics
	AccountsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_accounts_total",
			Help: "Total number of registered accounts",
		},
	)

	MessagesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_messages_total",
			Help: "Total number of undelivered (unread) messages across all accounts",
		},
	)

	// Raft metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLastLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_last_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftchat_raft_apply_duration_seconds",
			Help:    "Time taken for a Propose call to return, including commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftchat_rpc_requests_total",
			Help: "Total number of RPC requests by method and error kind",
		},
		[]string{"method", "kind"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raftchat_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Notifier metrics
	NotifierSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_notifier_subscribers_total",
			Help: "Number of usernames with a live streaming subscription on this node",
		},
	)

	NotifierDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftchat_notifier_drops_total",
			Help: "Total number of messages dropped because a subscriber's channel was full",
		},
	)

	// Client runtime metrics
	ClientRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftchat_client_retries_total",
			Help: "Total number of client retries by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(AccountsTotal)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftPeersTotal)
	prometheus.MustRegister(RaftLastLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(NotifierSubscribersTotal)
	prometheus.MustRegister(NotifierDropsTotal)
	prometheus.MustRegister(ClientRetriesTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for recording into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into histogram under labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
