// Package client implements consensus.Joiner by dialing a leader directly,
// and wraps every chat RPC with leader discovery, redirect-following
// retries, and exponential backoff so callers never have to know which
// node in the cluster is currently leader.
package client
