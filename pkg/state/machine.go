// Package state implements the deterministic core: given a Command and the
// current Store contents, it produces exactly one CommandResult and exactly
// one set of Store mutations, with no dependency on wall-clock time, random
// numbers, or goroutine scheduling. Every replica that applies the same
// sequence of commands ends up byte-identical.
package state

import (
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/raftchat/raftchat/pkg/storage"
	"github.com/raftchat/raftchat/pkg/types"
)

// Machine wraps a Store with the precondition checks and apply semantics
// that make command application deterministic and safe for concurrent
// reads. Writes only ever happen from Apply, always called by the single
// goroutine driving the raft FSM; reads may run from any number of RPC
// handler goroutines concurrently, hence the RWMutex.
type Machine struct {
	mu    sync.RWMutex
	store storage.Store
}

// New wraps store in a Machine.
func New(store storage.Store) *Machine {
	return &Machine{store: store}
}

// Apply executes cmd against the store and returns its outcome. It never
// returns a Go error: every failure mode the caller needs is represented in
// the returned CommandResult's Kind, because a replicated state machine
// must not diverge on error handling.
func (m *Machine) Apply(cmd types.Command) types.CommandResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cmd.Op {
	case types.OpRegister:
		return m.applyRegister(cmd.Register)
	case types.OpLogin:
		return m.applyLogin(cmd.Login)
	case types.OpSendMessage:
		return m.applySendMessage(cmd.SendMessage)
	case types.OpDeleteMessages:
		return m.applyDeleteMessages(cmd.DeleteMessages)
	case types.OpMarkAsRead:
		return m.applyMarkAsRead(cmd.MarkAsRead)
	case types.OpDeleteAccount:
		return m.applyDeleteAccount(cmd.DeleteAccount)
	default:
		return types.CommandResult{Kind: types.ErrInvalidArgument, Message: "unknown op"}
	}
}

func (m *Machine) applyRegister(c *types.RegisterCommand) types.CommandResult {
	if c == nil || c.Username == "" {
		return types.CommandResult{Kind: types.ErrInvalidArgument, Message: "username required"}
	}
	err := m.store.CreateAccount(&types.Account{
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.Timestamp,
		LastLogin:    c.Timestamp,
	})
	if err == storage.ErrAlreadyExists {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: "username already exists"}
	}
	if err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: err.Error()}
	}
	return types.CommandResult{Kind: types.ErrNone}
}

func (m *Machine) applyLogin(c *types.LoginCommand) types.CommandResult {
	acc, err := m.store.GetAccount(c.Username)
	if err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: "no such account"}
	}
	acc.LastLogin = c.Timestamp
	if err := m.store.UpdateAccount(acc); err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: err.Error()}
	}
	return types.CommandResult{Kind: types.ErrNone}
}

func (m *Machine) applySendMessage(c *types.SendMessageCommand) types.CommandResult {
	if _, err := m.store.GetAccount(c.Sender); err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: "sender does not exist"}
	}
	if _, err := m.store.GetAccount(c.Recipient); err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: "recipient does not exist"}
	}
	id, err := m.store.CreateMessage(&types.Message{
		Sender:    c.Sender,
		Recipient: c.Recipient,
		Content:   c.Content,
		Timestamp: c.Timestamp,
	})
	if err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: err.Error()}
	}
	return types.CommandResult{Kind: types.ErrNone, MessageID: id}
}

func (m *Machine) applyDeleteMessages(c *types.DeleteMessagesCommand) types.CommandResult {
	if c == nil || len(c.IDs) == 0 {
		return types.CommandResult{Kind: types.ErrInvalidArgument, Message: "no ids given"}
	}
	count := 0
	for _, id := range c.IDs {
		msg, err := m.store.GetMessage(id)
		if err != nil {
			continue
		}
		if msg.Sender != c.Actor && msg.Recipient != c.Actor {
			continue
		}
		if err := m.store.DeleteMessage(id); err == nil {
			count++
		}
	}
	return types.CommandResult{Kind: types.ErrNone, Count: count}
}

func (m *Machine) applyMarkAsRead(c *types.MarkAsReadCommand) types.CommandResult {
	if c == nil || len(c.IDs) == 0 {
		return types.CommandResult{Kind: types.ErrInvalidArgument, Message: "no ids given"}
	}
	count := 0
	for _, id := range c.IDs {
		msg, err := m.store.GetMessage(id)
		if err != nil || msg.Recipient != c.Actor || msg.Read {
			continue
		}
		msg.Read = true
		if err := m.store.UpdateMessage(msg); err == nil {
			count++
		}
	}
	return types.CommandResult{Kind: types.ErrNone, Count: count}
}

func (m *Machine) applyDeleteAccount(c *types.DeleteAccountCommand) types.CommandResult {
	if _, err := m.store.GetAccount(c.Username); err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: "no such account"}
	}
	involved, err := m.store.ListMessagesInvolving(c.Username)
	if err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: err.Error()}
	}
	for _, msg := range involved {
		_ = m.store.DeleteMessage(msg.ID)
	}
	if err := m.store.DeleteAccount(c.Username); err != nil {
		return types.CommandResult{Kind: types.ErrPreconditionFailed, Message: err.Error()}
	}
	return types.CommandResult{Kind: types.ErrNone}
}

// --- read-only queries, safe for concurrent callers ---

// AccountExists reports whether username is a registered account.
func (m *Machine) AccountExists(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.store.GetAccount(username)
	return err == nil
}

// VerifyPassword reports whether hash matches the stored password hash for
// username. Comparison happens here rather than in the RPC layer so the
// stored hash never needs to leave the state machine.
func (m *Machine) VerifyPassword(username string, hash []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, err := m.store.GetAccount(username)
	if err != nil {
		return false
	}
	if len(acc.PasswordHash) != len(hash) {
		return false
	}
	for i := range hash {
		if acc.PasswordHash[i] != hash[i] {
			return false
		}
	}
	return true
}

// ListAccounts returns usernames matching pattern (a SQL-LIKE style glob:
// '%' matches any run of characters, '_' matches exactly one), in
// lexicographic order, paginated by page (1-based) and perPage.
func (m *Machine) ListAccounts(pattern string, page, perPage int) ([]string, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts, err := m.store.ListAccounts()
	if err != nil {
		return nil, 0, err
	}

	var matched []string
	for _, acc := range accounts {
		if matchLike(pattern, acc.Username) {
			matched = append(matched, acc.Username)
		}
	}
	sort.Strings(matched)

	total := len(matched)
	if perPage <= 0 {
		return matched, total, nil
	}
	start := (page - 1) * perPage
	if start < 0 || start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// GetMessages returns the messages addressed to username, most recent
// first, up to limit (0 means no limit).
func (m *Machine) GetMessages(username string, limit int) ([]*types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs, err := m.store.ListMessagesByRecipient(username)
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// CountUnread returns the number of undelivered (unread) messages waiting
// for username.
func (m *Machine) CountUnread(username string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs, err := m.store.ListMessagesByRecipient(username)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, msg := range msgs {
		if !msg.Read {
			count++
		}
	}
	return count, nil
}

// matchLike implements a minimal SQL-LIKE matcher: '%' matches any sequence
// (including empty), '_' matches exactly one rune. An empty pattern matches
// everything.
func matchLike(pattern, s string) bool {
	if pattern == "" || pattern == "%" {
		return true
	}
	return likeMatch(pattern, s)
}

func likeMatch(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		rest := pattern[1:]
		if rest == "" {
			return true
		}
		for i := range s {
			if likeMatch(rest, s[i:]) {
				return true
			}
		}
		return likeMatch(rest, "")
	case '_':
		if s == "" {
			return false
		}
		_, size := utf8.DecodeRuneInString(s)
		return likeMatch(pattern[1:], s[size:])
	default:
		if s == "" || s[0] != pattern[0] {
			return false
		}
		return likeMatch(pattern[1:], s[1:])
	}
}
