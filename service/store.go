package service

import (
	"sync"
	"time"

	"github.com/Hussein135-coder/souriana-extract-bot/model"
)

// ChatState is the conversation context for one chat: the record awaiting
// confirmation and, during an edit, the field whose new value the next
// text message will carry.
type ChatState struct {
	Pending          model.Record
	AwaitingEditFor  string
	ConfirmMessageID int
	UpdatedAt        time.Time
}

// ConversationStore keys conversation state by chat ID so concurrent chats
// cannot clobber each other's pending records. It is passed explicitly to
// the handlers that need it; there is no global instance.
type ConversationStore struct {
	mu    sync.RWMutex
	chats map[int64]*ChatState
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		chats: make(map[int64]*ChatState),
	}
}

// SetPending replaces the chat's pending record and clears any in-flight
// edit. A new photo always starts a fresh confirmation round.
func (s *ConversationStore) SetPending(chatID int64, record model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = &ChatState{
		Pending:   record,
		UpdatedAt: time.Now(),
	}
}

// Pending returns a copy of the chat's pending record, or nil when the
// chat has nothing awaiting confirmation.
func (s *ConversationStore) Pending(chatID int64) model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.chats[chatID]
	if !ok || state.Pending == nil {
		return nil
	}
	return state.Pending.Clone()
}

// UpdateField sets one field of the chat's pending record. Existing keys
// are only ever replaced, never removed; unknown keys are added.
func (s *ConversationStore) UpdateField(chatID int64, field, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[chatID]
	if !ok || state.Pending == nil {
		return false
	}
	state.Pending[field] = value
	state.UpdatedAt = time.Now()
	return true
}

// SetAwaitingEdit marks which field the chat's next text message will
// replace.
func (s *ConversationStore) SetAwaitingEdit(chatID int64, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[chatID]
	if !ok {
		state = &ChatState{}
		s.chats[chatID] = state
	}
	state.AwaitingEditFor = field
	state.UpdatedAt = time.Now()
}

// TakeAwaitingEdit consumes the awaited field, if any. The one-shot
// semantics live here: after a successful take, further text messages are
// ordinary messages again.
func (s *ConversationStore) TakeAwaitingEdit(chatID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[chatID]
	if !ok || state.AwaitingEditFor == "" {
		return "", false
	}
	field := state.AwaitingEditFor
	state.AwaitingEditFor = ""
	state.UpdatedAt = time.Now()
	return field, true
}

// SetConfirmMessageID remembers the confirmation message so it can be
// edited or deleted instead of piling up new messages.
func (s *ConversationStore) SetConfirmMessageID(chatID int64, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.chats[chatID]; ok {
		state.ConfirmMessageID = messageID
		state.UpdatedAt = time.Now()
	}
}

// ConfirmMessageID returns the chat's confirmation message id, 0 if none.
func (s *ConversationStore) ConfirmMessageID(chatID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.chats[chatID]; ok {
		return state.ConfirmMessageID
	}
	return 0
}

// Clear discards the chat's conversation state entirely.
func (s *ConversationStore) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}

// Count returns the number of chats with live conversation state.
func (s *ConversationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}
