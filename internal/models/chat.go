package models

import "time"

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// MemberSetting is the per-participant sub-record of a chat (mute flag and
// whatever later settings land here).
type MemberSetting struct {
	UserID  string `bson:"user_id" json:"user_id"`
	IsMuted bool   `bson:"is_muted" json:"is_muted"`
}

type Chat struct {
	ID           string          `bson:"_id,omitempty" json:"id"`
	Type         ChatType        `bson:"type" json:"type"`
	Name         string          `bson:"name,omitempty" json:"name,omitempty"`
	Participants []string        `bson:"participants" json:"participants"`
	Admins       []string        `bson:"admins,omitempty" json:"admins,omitempty"`
	// PairKey is the sorted "a:b" participant pair for private chats; a
	// unique index on it makes find-or-create converge.
	PairKey     string          `bson:"pair_key,omitempty" json:"-"`
	LastMessage *Message        `bson:"last_message,omitempty" json:"last_message,omitempty"`
	Settings    []MemberSetting `bson:"settings,omitempty" json:"settings,omitempty"`
	CreatedAt   time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at" json:"updated_at"`
}

// IsParticipant reports whether uid is in the participant list.
func (c *Chat) IsParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// IsAdmin reports whether uid is in the admin list.
func (c *Chat) IsAdmin(uid string) bool {
	for _, a := range c.Admins {
		if a == uid {
			return true
		}
	}
	return false
}
