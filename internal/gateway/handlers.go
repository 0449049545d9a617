package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AlfazAli25/NexusChat/internal/apperr"
	"github.com/AlfazAli25/NexusChat/internal/connection"
	"github.com/AlfazAli25/NexusChat/internal/models"
)

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return v, nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[sendMessagePayload](raw)
	if err != nil {
		return err
	}
	if p.Content == "" && len(p.Attachments) == 0 {
		return fmt.Errorf("%w: empty message", apperr.ErrValidation)
	}
	msgType := models.MessageType(p.Type)
	if msgType == "" {
		msgType = models.MessageText
	}
	if _, err := g.participantChat(ctx, p.ChatID, c.UserID); err != nil {
		return err
	}

	msg := &models.Message{
		ChatID:      p.ChatID,
		SenderID:    c.UserID,
		Content:     p.Content,
		Type:        msgType,
		Status:      models.StatusSent,
		ClientKey:   p.ClientKey,
		ReplyTo:     p.ReplyTo,
		Attachments: p.Attachments,
	}
	// persistence first; nothing is broadcast on failure
	msg, err = g.repo.InsertMessage(ctx, msg)
	if err != nil {
		return err
	}
	bumpErr := g.repo.UpdateChatLastMessage(ctx, p.ChatID, msg)
	if bumpErr != nil {
		g.log.Warnw("last-message bump failed", "chat", p.ChatID, "err", bumpErr)
	}

	g.broadcastToRoom(p.ChatID, EvNewMessage, msg, "")
	// chat-updated mirrors persisted state only; a failed bump heals on
	// the next send
	if bumpErr == nil {
		g.broadcastToRoom(p.ChatID, EvChatUpdated, map[string]any{
			"chat_id":      p.ChatID,
			"last_message": msg,
		}, "")
	}

	if g.publisher != nil {
		if err := g.publisher.PublishMessageSent(ctx, msg); err != nil {
			g.log.Warnw("message-sent publish failed", "message", msg.ID, "err", err)
		}
	}
	return nil
}

func (g *Gateway) handleEditMessage(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[editMessagePayload](raw)
	if err != nil {
		return err
	}
	if p.MessageID == "" || p.Content == "" {
		return fmt.Errorf("%w: message_id and content required", apperr.ErrValidation)
	}
	msg, err := g.repo.GetMessage(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != c.UserID {
		return fmt.Errorf("%w: only the sender can edit", apperr.ErrAuthorization)
	}
	if msg.Type != models.MessageText {
		return fmt.Errorf("%w: only text messages can be edited", apperr.ErrValidation)
	}
	if msg.IsDeleted {
		return fmt.Errorf("%w: message is deleted", apperr.ErrValidation)
	}
	updated, err := g.repo.EditMessage(ctx, p.MessageID, p.Content)
	if err != nil {
		return err
	}
	g.broadcastToRoom(updated.ChatID, EvMessageEdited, updated, "")
	return nil
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[deleteMessagePayload](raw)
	if err != nil {
		return err
	}
	if p.MessageID == "" {
		return fmt.Errorf("%w: message_id required", apperr.ErrValidation)
	}
	msg, err := g.repo.GetMessage(ctx, p.MessageID)
	if err != nil {
		return err
	}
	chat, err := g.repo.GetChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if msg.SenderID != c.UserID && !chat.IsAdmin(c.UserID) {
		return fmt.Errorf("%w: sender or admin only", apperr.ErrAuthorization)
	}
	purged, err := g.repo.SoftDeleteMessage(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if g.purger != nil && len(purged) > 0 {
		// blob cleanup is best-effort; the tombstone already stands
		if err := g.purger.Purge(ctx, purged); err != nil {
			g.log.Warnw("attachment purge failed", "message", p.MessageID, "err", err)
		}
	}
	g.broadcastToRoom(msg.ChatID, EvMessageDeleted, map[string]any{
		"message_id": p.MessageID,
		"chat_id":    msg.ChatID,
	}, "")
	return nil
}

func (g *Gateway) handleAddReaction(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return err
	}
	if p.Emoji == "" {
		return fmt.Errorf("%w: empty emoji", apperr.ErrValidation)
	}
	if p.MessageID == "" {
		return fmt.Errorf("%w: message_id required", apperr.ErrValidation)
	}
	msg, err := g.repo.GetMessage(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if _, err := g.participantChat(ctx, msg.ChatID, c.UserID); err != nil {
		return err
	}
	updated, err := g.repo.ToggleReaction(ctx, p.MessageID, c.UserID, p.Emoji)
	if err != nil {
		return err
	}
	g.broadcastToRoom(updated.ChatID, EvReactionUpdated, map[string]any{
		"message_id": updated.ID,
		"chat_id":    updated.ChatID,
		"reactions":  updated.Reactions,
	}, "")
	return nil
}

func (g *Gateway) handleTyping(ctx context.Context, c *connection.Client, raw json.RawMessage, start bool) error {
	p, err := decode[typingPayload](raw)
	if err != nil {
		return err
	}
	if p.ChatID == "" {
		return fmt.Errorf("%w: missing chat_id", apperr.ErrValidation)
	}
	// room membership implies participation: joins are authorized
	if !g.rooms.IsJoined(c, p.ChatID) {
		return fmt.Errorf("%w: not subscribed to %s", apperr.ErrAuthorization, p.ChatID)
	}
	ev := typingEvent{ChatID: p.ChatID, UserID: c.UserID}
	if start {
		chatID, userID := p.ChatID, c.UserID
		g.typing.Set(chatID, userID, func() {
			// quiet window elapsed with no stop-typing
			g.broadcastToRoom(chatID, EvUserStopTyping, typingEvent{ChatID: chatID, UserID: userID}, userID)
		})
		g.broadcastToRoom(p.ChatID, EvUserTyping, ev, c.UserID)
		return nil
	}
	if g.typing.Clear(p.ChatID, c.UserID) {
		g.broadcastToRoom(p.ChatID, EvUserStopTyping, ev, c.UserID)
	}
	return nil
}

func (g *Gateway) handleMarkRead(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[markReadPayload](raw)
	if err != nil {
		return err
	}
	if len(p.MessageIDs) == 0 {
		return fmt.Errorf("%w: message_ids required", apperr.ErrValidation)
	}
	if _, err := g.participantChat(ctx, p.ChatID, c.UserID); err != nil {
		return err
	}
	updated, err := g.repo.MarkMessagesRead(ctx, p.ChatID, c.UserID, p.MessageIDs)
	if err != nil {
		return err
	}
	type readState struct {
		MessageID string               `json:"message_id"`
		Status    models.MessageStatus `json:"status"`
		ReadBy    []models.ReadReceipt `json:"read_by"`
	}
	states := make([]readState, 0, len(updated))
	for _, m := range updated {
		states = append(states, readState{MessageID: m.ID, Status: m.Status, ReadBy: m.ReadBy})
	}
	g.broadcastToRoom(p.ChatID, EvMessagesRead, map[string]any{
		"chat_id":   p.ChatID,
		"reader_id": c.UserID,
		"messages":  states,
	}, "")
	return nil
}

func (g *Gateway) handleUpdateStatus(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[updateStatusPayload](raw)
	if err != nil {
		return err
	}
	targets, ev, err := g.presence.SetStatus(ctx, c.UserID, models.PresenceStatus(p.Status))
	if err != nil {
		return err
	}
	if ev.UserID != "" {
		g.broadcastStatus(targets, ev)
	}
	return nil
}

// handleJoinChat subscribes the socket to a chat it already participates
// in. Unauthorized attempts are ignored without an error event so a caller
// cannot distinguish "no such chat" from "not yours".
func (g *Gateway) handleJoinChat(ctx context.Context, c *connection.Client, raw json.RawMessage) error {
	p, err := decode[joinChatPayload](raw)
	if err != nil {
		return err
	}
	if p.ChatID == "" {
		return fmt.Errorf("%w: missing chat_id", apperr.ErrValidation)
	}
	chat, err := g.repo.GetChat(ctx, p.ChatID)
	if err != nil || !chat.IsParticipant(c.UserID) {
		g.log.Warnw("join-chat ignored", "user", c.UserID, "chat", p.ChatID)
		return nil
	}
	g.rooms.Join(c, p.ChatID)
	return nil
}
