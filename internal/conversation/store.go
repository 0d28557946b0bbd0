package conversation

import (
	"errors"
	"fmt"
	"sync"
)

// Role tags who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored turn. Immutable once stored.
type Message struct {
	Role    Role
	Content string
}

const (
	// DefaultMaxTurns is the capacity of conversations that were never resized.
	DefaultMaxTurns = 30

	// MinTurns and MaxTurns bound the capacities Resize accepts.
	MinTurns = 1
	MaxTurns = 1000
)

// ErrInvalidCapacity is returned by Resize for capacities outside
// [MinTurns, MaxTurns].
var ErrInvalidCapacity = errors.New("invalid capacity")

// history is one chat's bounded message window.
type history struct {
	msgs     []Message
	maxTurns int
}

// trim evicts the oldest messages until len(msgs) <= maxTurns.
func (h *history) trim() {
	if len(h.msgs) <= h.maxTurns {
		return
	}
	excess := len(h.msgs) - h.maxTurns
	h.msgs = append(h.msgs[:0], h.msgs[excess:]...)
}

// Store maps chat IDs to bounded, ordered message histories. It is safe for
// concurrent use; each operation is atomic under a store-level lock, and
// History returns copies that never alias internal state.
type Store struct {
	mu        sync.Mutex
	histories map[int64]*history
	maxTurns  int
}

// NewStore creates a store whose conversations default to the given capacity.
// Non-positive values fall back to DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		histories: make(map[int64]*history),
		maxTurns:  maxTurns,
	}
}

// lookup returns the chat's history, creating it at the default capacity.
// The caller must hold s.mu.
func (s *Store) lookup(chatID int64) *history {
	h, ok := s.histories[chatID]
	if !ok {
		h = &history{maxTurns: s.maxTurns}
		s.histories[chatID] = h
	}
	return h
}

// AddMessage appends one turn to the chat's history, evicting the oldest turn
// when the history is at capacity. It never fails.
func (s *Store) AddMessage(chatID int64, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.lookup(chatID)
	h.msgs = append(h.msgs, Message{Role: role, Content: content})
	h.trim()
}

// History returns a copy of the chat's messages in chronological order.
// Unseen chats yield an empty slice.
func (s *Store) History(chatID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.lookup(chatID)
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Clear removes the chat entirely, including any capacity override. A later
// access recreates it at the store default. Clearing an unseen chat is a no-op.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.histories, chatID)
}

// Resize changes one chat's capacity. Values outside [MinTurns, MaxTurns]
// fail with ErrInvalidCapacity and leave the chat unchanged. On success any
// excess oldest messages are evicted before the call returns.
func (s *Store) Resize(chatID int64, maxTurns int) error {
	if maxTurns < MinTurns || maxTurns > MaxTurns {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidCapacity, maxTurns, MinTurns, MaxTurns)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.lookup(chatID)
	h.maxTurns = maxTurns
	h.trim()
	return nil
}

// Capacity returns the chat's effective capacity, or the store default for
// unseen chats.
func (s *Store) Capacity(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.histories[chatID]; ok {
		return h.maxTurns
	}
	return s.maxTurns
}

// Stats reports how many conversations and messages the store currently holds.
func (s *Store) Stats() (conversations, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.histories {
		messages += len(h.msgs)
	}
	return len(s.histories), messages
}
