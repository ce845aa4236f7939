// Package storage defines the durable relational-ish store the State
// Machine (pkg/state) applies committed commands against, and a BoltDB-backed
// implementation of it.
package storage

import "github.com/raftchat/raftchat/pkg/types"

// Store is the persistence interface for accounts and messages. It is
// intentionally dumb: every precondition check (duplicate username,
// unknown recipient, delete permission) belongs to pkg/state, not here.
// Implementations only need to give the caller atomic, ordered CRUD.
type Store interface {
	// CreateAccount inserts a new account. Returns ErrAlreadyExists if the
	// username is taken.
	CreateAccount(acc *types.Account) error
	// GetAccount returns ErrNotFound if the username does not exist.
	GetAccount(username string) (*types.Account, error)
	// ListAccounts returns every account, keyed in lexicographic username
	// order (bbolt stores keys sorted, so this is a plain bucket scan).
	ListAccounts() ([]*types.Account, error)
	// UpdateAccount overwrites an existing account's mutable fields.
	UpdateAccount(acc *types.Account) error
	// DeleteAccount removes an account. Deleting its messages is the
	// caller's responsibility (pkg/state coordinates the cascade).
	DeleteAccount(username string) error

	// CreateMessage assigns the next deterministic id, stores the message
	// under it, and returns that id. The id counter and the message row
	// are persisted in the same transaction.
	CreateMessage(msg *types.Message) (uint64, error)
	// GetMessage returns ErrNotFound if id does not exist.
	GetMessage(id uint64) (*types.Message, error)
	// ListMessagesByRecipient returns every message addressed to username,
	// in no particular order; pkg/state sorts and limits.
	ListMessagesByRecipient(username string) ([]*types.Message, error)
	// ListMessagesInvolving returns every message where username is
	// sender or recipient.
	ListMessagesInvolving(username string) ([]*types.Message, error)
	// UpdateMessage overwrites a message row (used to flip Read).
	UpdateMessage(msg *types.Message) error
	// DeleteMessage removes a message row. No-op if absent.
	DeleteMessage(id uint64) error

	// NextMessageID reports the id CreateMessage would assign next,
	// without consuming it. Used by snapshot/restore to recover the
	// counter.
	NextMessageID() (uint64, error)
	// SetNextMessageID forces the counter, used only by Restore.
	SetNextMessageID(next uint64) error

	// Reset empties every account and message row and resets the message
	// id counter, so a snapshot can be restored into a store that already
	// holds data (a lagging follower catching up) without CreateAccount
	// failing on rows the snapshot is about to re-create.
	Reset() error

	Close() error
}
