// Package notifier delivers newly committed messages to connected clients
// without making delivery part of apply itself: the state machine commits
// first, and only after the command has actually applied does the caller
// hand the resulting message to the Notifier for best-effort push.
package notifier

import (
	"sync"

	"github.com/raftchat/raftchat/pkg/metrics"
	"github.com/raftchat/raftchat/pkg/types"
)

// subscriberBuffer caps how many undelivered messages a subscription holds
// before Deliver starts dropping rather than blocking the applier.
const subscriberBuffer = 64

// Subscription is the channel a streaming RPC handler reads from.
type Subscription <-chan *types.Message

// subscriber is the internal, writable half of a Subscription plus the
// bookkeeping the notifier needs to resume or evict it.
type subscriber struct {
	ch              chan *types.Message
	lastDeliveredID uint64
}

// Notifier fans committed messages out to at most one live subscription per
// username. A second Subscribe for the same user evicts the first: a user
// is assumed to run one stream connection at a time, and a stale connection
// holding a slot would otherwise starve a reconnect.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{subs: make(map[string]*subscriber)}
}

// Subscribe registers username for delivery and returns the channel new
// messages will arrive on. resumeAfterID lets a reconnecting client avoid
// re-fetching everything through GetMessages; Deliver skips ids at or below
// it for this subscription only. If username already has a live
// subscription, it is closed and evicted first.
func (n *Notifier) Subscribe(username string, resumeAfterID uint64) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.subs[username]; ok {
		close(existing.ch)
	}

	sub := &subscriber{
		ch:              make(chan *types.Message, subscriberBuffer),
		lastDeliveredID: resumeAfterID,
	}
	n.subs[username] = sub
	return sub.ch
}

// Unsubscribe removes username's subscription if it is still the one
// passed in (a stale caller's Unsubscribe must not evict a newer
// subscription that replaced it).
func (n *Notifier) Unsubscribe(username string, sub Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	existing, ok := n.subs[username]
	if !ok || existing.ch != sub {
		return
	}
	delete(n.subs, username)
	close(existing.ch)
}

// Deliver pushes msg to its recipient's live subscription, if any. It never
// blocks: a full subscriber channel means the subscriber is falling behind,
// and the message is simply dropped (the client is expected to recover via
// GetMessages on reconnect).
func (n *Notifier) Deliver(msg *types.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subs[msg.Recipient]
	if !ok || msg.ID <= sub.lastDeliveredID {
		return
	}

	select {
	case sub.ch <- msg:
		sub.lastDeliveredID = msg.ID
	default:
		metrics.NotifierDropsTotal.Inc()
	}
}

// SubscriberCount reports how many usernames currently hold a live
// subscription. Used by metrics, not by delivery logic.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
