package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/raftchat/raftchat/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccounts = []byte("accounts")
	bucketMessages = []byte("messages")
	bucketMeta     = []byte("meta")

	metaKeyNextMessageID = []byte("next_message_id")
)

// BoltStore implements Store on top of a single BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the state database under
// dataDir/chat-state.db and ensures its buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "chat-state.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAccounts, bucketMessages, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Accounts ---

func (s *BoltStore) CreateAccount(acc *types.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if b.Get([]byte(acc.Username)) != nil {
			return ErrAlreadyExists
		}
		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		return b.Put([]byte(acc.Username), data)
	})
}

func (s *BoltStore) GetAccount(username string) (*types.Account, error) {
	var acc types.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		data := b.Get([]byte(username))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &acc)
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *BoltStore) ListAccounts() ([]*types.Account, error) {
	var accounts []*types.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var acc types.Account
			if err := json.Unmarshal(v, &acc); err != nil {
				return err
			}
			accounts = append(accounts, &acc)
		}
		return nil
	})
	return accounts, err
}

func (s *BoltStore) UpdateAccount(acc *types.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		return b.Put([]byte(acc.Username), data)
	})
}

func (s *BoltStore) DeleteAccount(username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		return b.Delete([]byte(username))
	})
}

// --- Messages ---

func messageKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func (s *BoltStore) CreateMessage(msg *types.Message) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		id = nextCounter(meta, metaKeyNextMessageID)

		msg.ID = id
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMessages).Put(messageKey(id), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// nextCounter reads the counter at key, increments it, writes it back, and
// returns the value it assigned (1-based: the first call returns 1).
func nextCounter(meta *bolt.Bucket, key []byte) uint64 {
	var current uint64
	if raw := meta.Get(key); raw != nil {
		current = binary.BigEndian.Uint64(raw)
	}
	current++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, current)
	_ = meta.Put(key, buf)
	return current
}

func (s *BoltStore) GetMessage(id uint64) (*types.Message, error) {
	var msg types.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMessages).Get(messageKey(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *BoltStore) ListMessagesByRecipient(username string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMessages).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg types.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			if msg.Recipient == username {
				messages = append(messages, &msg)
			}
		}
		return nil
	})
	return messages, err
}

func (s *BoltStore) ListMessagesInvolving(username string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMessages).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg types.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			if msg.Sender == username || msg.Recipient == username {
				messages = append(messages, &msg)
			}
		}
		return nil
	})
	return messages, err
}

func (s *BoltStore) UpdateMessage(msg *types.Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMessages).Put(messageKey(msg.ID), data)
	})
}

func (s *BoltStore) DeleteMessage(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMessages).Delete(messageKey(id))
	})
}

func (s *BoltStore) NextMessageID() (uint64, error) {
	var next uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(metaKeyNextMessageID)
		if raw != nil {
			next = binary.BigEndian.Uint64(raw)
		}
		next++
		return nil
	})
	return next, err
}

func (s *BoltStore) SetNextMessageID(next uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		// Stored value is the last *assigned* id, so storing next-1 makes
		// the next call to nextCounter hand out exactly next.
		binary.BigEndian.PutUint64(buf, next-1)
		return tx.Bucket(bucketMeta).Put(metaKeyNextMessageID, buf)
	})
}

// Reset deletes and recreates every bucket, leaving the store empty.
func (s *BoltStore) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAccounts, bucketMessages, bucketMeta} {
			if err := tx.DeleteBucket(bucket); err != nil && err != bolt.ErrBucketNotFound {
				return fmt.Errorf("delete bucket %s: %w", bucket, err)
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return fmt.Errorf("recreate bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}
