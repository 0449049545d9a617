package gateway

import "encoding/json"

// Inbound client events.
const (
	EvSendMessage   = "send-message"
	EvEditMessage   = "edit-message"
	EvDeleteMessage = "delete-message"
	EvAddReaction   = "add-reaction"
	EvTyping        = "typing"
	EvStopTyping    = "stop-typing"
	EvMarkRead      = "mark-read"
	EvUpdateStatus  = "update-status"
	EvJoinChat      = "join-chat"
)

// Outbound server events.
const (
	EvNewMessage      = "new-message"
	EvChatUpdated     = "chat-updated"
	EvMessageEdited   = "message-edited"
	EvMessageDeleted  = "message-deleted"
	EvReactionUpdated = "reaction-updated"
	EvUserTyping      = "user-typing"
	EvUserStopTyping  = "user-stop-typing"
	EvMessagesRead    = "messages-read"
	EvStatusChange    = "user-status-change"
	EvError           = "error"
)

// Collaborator-triggered events the gateway only delivers. They arrive via
// the internal emit API or the NATS subject.
const (
	EvNewFriendRequest      = "new-friend-request"
	EvFriendRequestAccepted = "friend-request-accepted"
	EvGroupCreated          = "group-created"
	EvGroupUpdated          = "group-updated"
	EvGroupDeleted          = "group-deleted"
	EvAddedToGroup          = "added-to-group"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}

type sendMessagePayload struct {
	ChatID      string   `json:"chat_id"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	ReplyTo     string   `json:"reply_to,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	ClientKey   string   `json:"client_key,omitempty"`
}

type editMessagePayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type deleteMessagePayload struct {
	MessageID string `json:"message_id"`
}

type reactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type typingPayload struct {
	ChatID string `json:"chat_id"`
}

type markReadPayload struct {
	ChatID     string   `json:"chat_id"`
	MessageIDs []string `json:"message_ids"`
}

type updateStatusPayload struct {
	Status string `json:"status"`
}

type joinChatPayload struct {
	ChatID string `json:"chat_id"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type typingEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}
