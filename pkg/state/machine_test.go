package state

import (
	"testing"
	"time"

	"github.com/raftchat/raftchat/pkg/storage"
	"github.com/raftchat/raftchat/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T) (*Machine, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func TestApplyRegister(t *testing.T) {
	m, _ := newTestMachine(t)
	now := time.Unix(1000, 0)

	res := m.Apply(types.Command{
		Op:       types.OpRegister,
		Register: &types.RegisterCommand{Username: "alice", PasswordHash: []byte("hash"), Timestamp: now},
	})
	assert.True(t, res.OK())
	assert.True(t, m.AccountExists("alice"))
	assert.True(t, m.VerifyPassword("alice", []byte("hash")))
	assert.False(t, m.VerifyPassword("alice", []byte("wrong")))
}

func TestApplyRegisterDuplicate(t *testing.T) {
	m, _ := newTestMachine(t)
	cmd := types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}}

	require.True(t, m.Apply(cmd).OK())

	res := m.Apply(cmd)
	assert.Equal(t, types.ErrPreconditionFailed, res.Kind)
}

func TestApplySendMessageRequiresBothParties(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}})

	res := m.Apply(types.Command{
		Op:          types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hi"},
	})
	assert.Equal(t, types.ErrPreconditionFailed, res.Kind)

	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "bob"}})
	res = m.Apply(types.Command{
		Op:          types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hi"},
	})
	assert.True(t, res.OK())
	assert.Equal(t, uint64(1), res.MessageID)
}

func TestSendMessageIDsAreSequential(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}})
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "bob"}})

	for i := 1; i <= 3; i++ {
		res := m.Apply(types.Command{
			Op:          types.OpSendMessage,
			SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hi"},
		})
		require.True(t, res.OK())
		assert.Equal(t, uint64(i), res.MessageID)
	}
}

func TestMarkAsReadOnlyAffectsRecipient(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}})
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "bob"}})
	send := m.Apply(types.Command{
		Op:          types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hi"},
	})
	require.True(t, send.OK())

	// alice is not the recipient, so marking as read from her should affect nothing.
	res := m.Apply(types.Command{
		Op:         types.OpMarkAsRead,
		MarkAsRead: &types.MarkAsReadCommand{Actor: "alice", IDs: []uint64{send.MessageID}},
	})
	assert.Equal(t, 0, res.Count)

	res = m.Apply(types.Command{
		Op:         types.OpMarkAsRead,
		MarkAsRead: &types.MarkAsReadCommand{Actor: "bob", IDs: []uint64{send.MessageID}},
	})
	assert.Equal(t, 1, res.Count)

	unread, err := m.CountUnread("bob")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestDeleteMessagesRequiresParticipant(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}})
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "bob"}})
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "carol"}})
	send := m.Apply(types.Command{
		Op:          types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hi"},
	})
	require.True(t, send.OK())

	res := m.Apply(types.Command{
		Op:             types.OpDeleteMessages,
		DeleteMessages: &types.DeleteMessagesCommand{Actor: "carol", IDs: []uint64{send.MessageID}},
	})
	assert.Equal(t, 0, res.Count)

	res = m.Apply(types.Command{
		Op:             types.OpDeleteMessages,
		DeleteMessages: &types.DeleteMessagesCommand{Actor: "bob", IDs: []uint64{send.MessageID}},
	})
	assert.Equal(t, 1, res.Count)
}

func TestDeleteAccountCascadesMessages(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}})
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "bob"}})
	send := m.Apply(types.Command{
		Op:          types.OpSendMessage,
		SendMessage: &types.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hi"},
	})
	require.True(t, send.OK())

	res := m.Apply(types.Command{Op: types.OpDeleteAccount, DeleteAccount: &types.DeleteAccountCommand{Username: "alice"}})
	assert.True(t, res.OK())
	assert.False(t, m.AccountExists("alice"))

	msgs, err := m.GetMessages("bob", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListAccountsWildcard(t *testing.T) {
	m, _ := newTestMachine(t)
	for _, name := range []string{"alice", "alicia", "bob", "alina"} {
		m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: name}})
	}

	matches, total, err := m.ListAccounts("ali%", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"alice", "alicia", "alina"}, matches)

	matches, total, err = m.ListAccounts("ali_e", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"alice"}, matches)
}

func TestListAccountsPagination(t *testing.T) {
	m, _ := newTestMachine(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: name}})
	}

	page1, total, err := m.ListAccounts("", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"a", "b"}, page1)

	page3, _, err := m.ListAccounts("", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, page3)

	pageOOB, _, err := m.ListAccounts("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, pageOOB)
}

func TestGetMessagesOrderedMostRecentFirst(t *testing.T) {
	m, _ := newTestMachine(t)
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "alice"}})
	m.Apply(types.Command{Op: types.OpRegister, Register: &types.RegisterCommand{Username: "bob"}})

	base := time.Unix(2000, 0)
	for i := 0; i < 3; i++ {
		m.Apply(types.Command{
			Op: types.OpSendMessage,
			SendMessage: &types.SendMessageCommand{
				Sender: "alice", Recipient: "bob", Content: "hi",
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			},
		})
	}

	msgs, err := m.GetMessages("bob", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(3), msgs[0].ID)
	assert.Equal(t, uint64(1), msgs[2].ID)
}
