package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAtLeastOneAddr(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewTracksFirstAddrAsLeaderGuess(t *testing.T) {
	c, err := New([]string{"127.0.0.1:9001", "127.0.0.1:9002"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", c.currentLeader())
}

func TestBackoffDoublesThenCaps(t *testing.T) {
	assert.Equal(t, backoffBase, backoff(0))
	assert.Equal(t, 2*backoffBase, backoff(1))
	assert.Equal(t, 4*backoffBase, backoff(2))
	assert.Equal(t, backoffCap, backoff(20))
}

func TestNextAddrWrapsAround(t *testing.T) {
	c, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, "b", c.nextAddr("a"))
	assert.Equal(t, "c", c.nextAddr("b"))
	assert.Equal(t, "a", c.nextAddr("c"))
	assert.Equal(t, "a", c.nextAddr("unknown"))
}

func TestSetLeaderUpdatesCurrentLeader(t *testing.T) {
	c, err := New([]string{"a", "b"})
	require.NoError(t, err)

	c.setLeader("b")
	assert.Equal(t, "b", c.currentLeader())
}

func TestCloseWithNoConnectionsIsNoop(t *testing.T) {
	c, err := New([]string{"127.0.0.1:9001"})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
