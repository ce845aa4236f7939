package storage

import (
	"testing"

	"github.com/raftchat/raftchat/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAccountRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAccount(&types.Account{Username: "alice"}))
	assert.ErrorIs(t, s.CreateAccount(&types.Account{Username: "alice"}), ErrAlreadyExists)
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAccount("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAccountsLexicographicOrder(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.CreateAccount(&types.Account{Username: name}))
	}
	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "bob", accounts[1].Username)
	assert.Equal(t, "carol", accounts[2].Username)
}

func TestCreateMessageAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		id, err := s.CreateMessage(&types.Message{Sender: "a", Recipient: "b"})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestNextMessageIDTracksAssignments(t *testing.T) {
	s := newTestStore(t)
	next, err := s.NextMessageID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	id, err := s.CreateMessage(&types.Message{Sender: "a", Recipient: "b"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	next, err = s.NextMessageID()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}

func TestSetNextMessageIDRestoresCounter(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetNextMessageID(100))

	id, err := s.CreateMessage(&types.Message{Sender: "a", Recipient: "b"})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), id)
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateMessage(&types.Message{Sender: "a", Recipient: "b"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(id))
	require.NoError(t, s.DeleteMessage(id))

	_, err = s.GetMessage(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetEmptiesStoreAndAllowsRecreation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAccount(&types.Account{Username: "alice"}))
	_, err := s.CreateMessage(&types.Message{Sender: "alice", Recipient: "alice"})
	require.NoError(t, err)

	require.NoError(t, s.Reset())

	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	// A fresh CreateAccount for a username that existed before Reset must
	// succeed rather than returning ErrAlreadyExists.
	require.NoError(t, s.CreateAccount(&types.Account{Username: "alice"}))

	next, err := s.NextMessageID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestListMessagesInvolvingBothDirections(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateMessage(&types.Message{Sender: "alice", Recipient: "bob"})
	require.NoError(t, err)
	_, err = s.CreateMessage(&types.Message{Sender: "bob", Recipient: "alice"})
	require.NoError(t, err)
	_, err = s.CreateMessage(&types.Message{Sender: "carol", Recipient: "dave"})
	require.NoError(t, err)

	msgs, err := s.ListMessagesInvolving("alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
