package repository

import (
	"context"

	"github.com/AlfazAli25/NexusChat/internal/models"
)

// Repository is the persistence collaborator consumed by the gateway. All
// operations are atomic at the single-document level.
type Repository interface {
	FindOrCreatePrivateChat(ctx context.Context, userA, userB string) (*models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	// ChatIDsForUser backs the handshake auto-join; it projects ids only
	// and is capped so a pathological membership count cannot blow up the
	// handshake.
	ChatIDsForUser(ctx context.Context, userID string, limit int64) ([]string, error)

	InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (*models.Message, error)
	// SoftDeleteMessage tombstones the content, clears attachments and
	// returns the attachment URLs that must be purged from blob storage.
	SoftDeleteMessage(ctx context.Context, messageID string) ([]string, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*models.Message, error)
	// MarkMessagesRead adds a read receipt for readerID on every listed
	// message and escalates status to seen once all other participants
	// have read. Returns the updated messages.
	MarkMessagesRead(ctx context.Context, chatID, readerID string, messageIDs []string) ([]*models.Message, error)
	UpdateChatLastMessage(ctx context.Context, chatID string, m *models.Message) error

	// LeaveGroup removes userID from the group. The last participant
	// leaving deletes the chat (deleted=true); the last admin leaving
	// promotes a remaining participant.
	LeaveGroup(ctx context.Context, chatID, userID string) (chat *models.Chat, deleted bool, err error)

	// Friends is the stored relation set used for presence fan-out.
	Friends(ctx context.Context, userID string) ([]string, error)
}
