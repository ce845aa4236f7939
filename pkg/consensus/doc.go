// Package consensus wraps hashicorp/raft into a Node: a single replica of
// the chat cluster that can bootstrap a new quorum, join an existing one,
// and propose commands that every replica applies identically. Log
// replication, leader election, and snapshot transfer are all
// hashicorp/raft's responsibility; this package owns only the lifecycle
// around it (Bootstrap/Join/AddVoter/RemoveServer) and the FSM adapter
// (fsm.go) that feeds committed entries to pkg/state.
package consensus
