package metrics

import "time"

// ClusterStats is the minimal view a Collector needs of a running node; it
// exists so this package never imports pkg/consensus (which would create an
// import cycle through pkg/rpc).
type ClusterStats interface {
	IsLeader() bool
	PeerCount() int
	LastLogIndex() uint64
	AppliedIndex() uint64
	AccountCount() (int, error)
	UnreadMessageCount() (int, error)
	SubscriberCount() int
}

// Collector periodically samples a running node's state into the package's
// gauges. It runs on its own ticker rather than on every raft apply because
// most of these numbers (account/message totals) are expensive full-bucket
// scans that would be wasteful to compute on every write.
type Collector struct {
	stats  ClusterStats
	stopCh chan struct{}
}

// NewCollector wraps stats for periodic sampling.
func NewCollector(stats ClusterStats) *Collector {
	return &Collector{stats: stats, stopCh: make(chan struct{})}
}

// Start begins the sampling loop on its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.stats.IsLeader() {
		RaftIsLeader.Set(1)
	} else {
		RaftIsLeader.Set(0)
	}
	RaftPeersTotal.Set(float64(c.stats.PeerCount()))
	RaftLastLogIndex.Set(float64(c.stats.LastLogIndex()))
	RaftAppliedIndex.Set(float64(c.stats.AppliedIndex()))

	if n, err := c.stats.AccountCount(); err == nil {
		AccountsTotal.Set(float64(n))
	}
	if n, err := c.stats.UnreadMessageCount(); err == nil {
		MessagesTotal.Set(float64(n))
	}
	NotifierSubscribersTotal.Set(float64(c.stats.SubscriberCount()))
}
