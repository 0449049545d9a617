package models

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageVoice    MessageType = "voice"
	MessageSystem   MessageType = "system"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// DeletedPlaceholder replaces the content of soft-deleted messages. The row
// stays for ordering continuity.
const DeletedPlaceholder = "This message was deleted"

type Reaction struct {
	Emoji  string `bson:"emoji" json:"emoji"`
	UserID string `bson:"user_id" json:"user_id"`
}

type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

type Message struct {
	ID       string        `bson:"_id,omitempty" json:"id"`
	ChatID   string        `bson:"chat_id" json:"chat_id"`
	SenderID string        `bson:"sender_id" json:"sender_id"`
	Content  string        `bson:"content" json:"content"`
	Type     MessageType   `bson:"type" json:"type"`
	Status   MessageStatus `bson:"status" json:"status"`
	// ClientKey is the sender-generated idempotency key, echoed back so
	// the sending client can collapse its optimistic placeholder.
	ClientKey   string        `bson:"client_key,omitempty" json:"client_key,omitempty"`
	ReplyTo     string        `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Reactions   []Reaction    `bson:"reactions,omitempty" json:"reactions,omitempty"`
	Attachments []string      `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ReadBy      []ReadReceipt `bson:"read_by,omitempty" json:"read_by,omitempty"`
	IsEdited    bool          `bson:"is_edited" json:"is_edited"`
	EditedAt    *time.Time    `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	IsDeleted   bool          `bson:"is_deleted" json:"is_deleted"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
}

// HasReaction reports whether the (user, emoji) pair is present.
func (m *Message) HasReaction(uid, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == uid && r.Emoji == emoji {
			return true
		}
	}
	return false
}
