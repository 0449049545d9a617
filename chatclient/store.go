// Package chatclient is the client-side reconciliation store used by Go
// clients and bots. It keeps per-conversation message sequences that stay
// eventually consistent with the server's canonical order while giving
// instant local feedback for the user's own sends.
//
// The package is importable from other modules, so it defines its own copy
// of the wire documents; the json tags match the frames the gateway emits.
package chatclient

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix namespaces locally generated placeholder ids; the server
// never assigns ids in this namespace.
const TempIDPrefix = "temp-"

// DeletedPlaceholder is the tombstone content of soft-deleted messages.
const DeletedPlaceholder = "This message was deleted"

// Message lifecycle statuses as they appear on the wire.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSeen      = "seen"
)

// TypeText is the default message type.
const TypeText = "text"

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

type ReadReceipt struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// Message mirrors the canonical message document in new-message and
// message-edited frames.
type Message struct {
	ID          string        `json:"id"`
	ChatID      string        `json:"chat_id"`
	SenderID    string        `json:"sender_id"`
	Content     string        `json:"content"`
	Type        string        `json:"type"`
	Status      string        `json:"status"`
	ClientKey   string        `json:"client_key,omitempty"`
	ReplyTo     string        `json:"reply_to,omitempty"`
	Reactions   []Reaction    `json:"reactions,omitempty"`
	Attachments []string      `json:"attachments,omitempty"`
	ReadBy      []ReadReceipt `json:"read_by,omitempty"`
	IsEdited    bool          `json:"is_edited"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	IsDeleted   bool          `json:"is_deleted"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Chat is the conversation list entry.
type Chat struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants"`
	Admins       []string  `json:"admins,omitempty"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Entry is one message in a local sequence. Pending entries are optimistic
// placeholders awaiting their canonical echo; Unconfirmed flags pending
// entries that outlived the confirmation window.
type Entry struct {
	Message
	Pending     bool
	Unconfirmed bool
}

// Outbound is the send-message payload to emit over the socket alongside
// the optimistic local append.
type Outbound struct {
	ChatID      string   `json:"chat_id"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	ReplyTo     string   `json:"reply_to,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	ClientKey   string   `json:"client_key"`
}

// Store holds the conversation list, message sequences and typing state for
// one authenticated user.
type Store struct {
	mu     sync.Mutex
	self   string
	window time.Duration

	seqs    map[string][]Entry
	present map[string]map[string]bool // chatID -> canonical ids already held
	chats   map[string]*Chat
	gen     uint64
	typing  map[typingKey]typingFlag
}

type typingKey struct {
	chatID string
	userID string
}

type typingFlag struct {
	timer *time.Timer
	gen   uint64
}

// New builds a store for the given user. typingWindow mirrors the server's
// quiet window so a dropped stop-typing still clears locally.
func New(selfID string, typingWindow time.Duration) *Store {
	if typingWindow == 0 {
		typingWindow = 3 * time.Second
	}
	return &Store{
		self:    selfID,
		window:  typingWindow,
		seqs:    make(map[string][]Entry),
		present: make(map[string]map[string]bool),
		chats:   make(map[string]*Chat),
		typing:  make(map[typingKey]typingFlag),
	}
}

// SendLocal appends an optimistic placeholder and returns the payload to
// emit. The placeholder is visible immediately; it carries a temp id and an
// idempotency key the server echoes back on the canonical message.
func (s *Store) SendLocal(chatID, content, msgType, replyTo string, attachments []string) (Entry, Outbound) {
	if msgType == "" {
		msgType = TypeText
	}
	key := uuid.NewString()
	e := Entry{
		Message: Message{
			ID:          TempIDPrefix + uuid.NewString(),
			ChatID:      chatID,
			SenderID:    s.self,
			Content:     content,
			Type:        msgType,
			Status:      StatusSent,
			ClientKey:   key,
			ReplyTo:     replyTo,
			Attachments: attachments,
			CreatedAt:   time.Now().UTC(),
		},
		Pending: true,
	}
	s.mu.Lock()
	s.seqs[chatID] = append(s.seqs[chatID], e)
	s.mu.Unlock()

	return e, Outbound{
		ChatID:      chatID,
		Content:     content,
		Type:        msgType,
		ReplyTo:     replyTo,
		Attachments: attachments,
		ClientKey:   key,
	}
}

// ApplyRemote merges a canonical server message into the sequence:
//
//  1. a canonical id already present is dropped (idempotent re-delivery),
//  2. a pending placeholder with the same client key is replaced in place,
//  3. failing that, a pending placeholder from the same sender with
//     identical content is replaced (legacy clients without keys; a
//     documented approximation),
//  4. otherwise the message is appended.
//
// Safe against arbitrarily delayed arrival: a late echo still collapses
// its placeholder instead of duplicating.
func (s *Store) ApplyRemote(chatID string, m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.present[chatID][m.ID] {
		return
	}
	seq := s.seqs[chatID]

	match := -1
	if m.ClientKey != "" {
		for i, e := range seq {
			if e.Pending && e.ClientKey == m.ClientKey {
				match = i
				break
			}
		}
	}
	if match < 0 && m.SenderID == s.self && m.ClientKey == "" {
		for i, e := range seq {
			if e.Pending && e.Content == m.Content {
				match = i
				break
			}
		}
	}
	if match >= 0 {
		seq[match] = Entry{Message: m}
	} else {
		seq = append(seq, Entry{Message: m})
		s.seqs[chatID] = seq
	}
	s.markPresent(chatID, m.ID)
}

// ApplyEdit replaces the message in place; no-op when the id is not held
// locally (conversation not loaded yet).
func (s *Store) ApplyEdit(chatID string, m Message) {
	s.replace(chatID, m.ID, func(e *Entry) { e.Message = m })
}

// ApplyDelete tombstones the local copy.
func (s *Store) ApplyDelete(chatID, messageID string) {
	s.replace(chatID, messageID, func(e *Entry) {
		e.IsDeleted = true
		e.Content = DeletedPlaceholder
		e.Attachments = nil
	})
}

// ApplyReaction swaps in the full reaction list from the server.
func (s *Store) ApplyReaction(chatID, messageID string, reactions []Reaction) {
	s.replace(chatID, messageID, func(e *Entry) { e.Reactions = reactions })
}

// ApplyRead updates lifecycle status and receipts.
func (s *Store) ApplyRead(chatID, messageID, status string, readBy []ReadReceipt) {
	s.replace(chatID, messageID, func(e *Entry) {
		e.Status = status
		e.ReadBy = readBy
	})
}

func (s *Store) replace(chatID, messageID string, fn func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seqs[chatID]
	for i := range seq {
		if seq[i].ID == messageID {
			fn(&seq[i])
			return
		}
	}
}

// Messages returns a snapshot of the conversation sequence.
func (s *Store) Messages(chatID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.seqs[chatID]...)
}

// MarkUnconfirmed flags optimistic entries older than the window that never
// received a canonical echo, and returns their temp ids. The entries stay
// visible; surfacing them is a UX decision.
func (s *Store) MarkUnconfirmed(olderThan time.Duration) []string {
	cutoff := time.Now().UTC().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, seq := range s.seqs {
		for i := range seq {
			if seq[i].Pending && !seq[i].Unconfirmed && seq[i].CreatedAt.Before(cutoff) {
				seq[i].Unconfirmed = true
				ids = append(ids, seq[i].ID)
			}
		}
	}
	return ids
}

// UpsertChat stores or refreshes a conversation list entry.
func (s *Store) UpsertChat(chat *Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
}

// ApplyChatUpdated bumps the conversation's last-message pointer.
func (s *Store) ApplyChatUpdated(chatID string, last *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chats[chatID]; ok {
		c.LastMessage = last
		c.UpdatedAt = last.CreatedAt
	}
}

// Chat returns the stored conversation entry, or nil.
func (s *Store) Chat(chatID string) *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[chatID]
}

// SetTyping applies a typing flag for (chat, user). A start flag auto-
// expires after the quiet window even if no stop event ever arrives.
func (s *Store) SetTyping(chatID, userID string, typing bool) {
	key := typingKey{chatID, userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.typing[key]; ok {
		f.timer.Stop()
		delete(s.typing, key)
	}
	if !typing {
		return
	}
	s.gen++
	gen := s.gen
	timer := time.AfterFunc(s.window, func() { s.expireTyping(key, gen) })
	s.typing[key] = typingFlag{timer: timer, gen: gen}
}

// expireTyping clears the flag when its own timer fires. A refresh can
// replace the flag after the old timer fired but before this ran; a stale
// generation must leave the fresh flag untouched.
func (s *Store) expireTyping(key typingKey, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.typing[key]; ok && f.gen == gen {
		delete(s.typing, key)
	}
}

// Typers lists users currently typing in the chat.
func (s *Store) Typers(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for key := range s.typing {
		if key.chatID == chatID {
			out = append(out, key.userID)
		}
	}
	return out
}

func (s *Store) markPresent(chatID, id string) {
	if strings.HasPrefix(id, TempIDPrefix) {
		return
	}
	if s.present[chatID] == nil {
		s.present[chatID] = make(map[string]bool)
	}
	s.present[chatID][id] = true
}
