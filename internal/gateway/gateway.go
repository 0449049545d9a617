package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AlfazAli25/NexusChat/internal/apperr"
	"github.com/AlfazAli25/NexusChat/internal/connection"
	"github.com/AlfazAli25/NexusChat/internal/models"
	"github.com/AlfazAli25/NexusChat/internal/presence"
	"github.com/AlfazAli25/NexusChat/internal/registry"
	"github.com/AlfazAli25/NexusChat/internal/repository"
	"github.com/AlfazAli25/NexusChat/internal/rooms"
)

// TokenValidator verifies the handshake credential and yields the user id.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// MessagePublisher pushes canonical messages to the notification stream.
type MessagePublisher interface {
	PublishMessageSent(ctx context.Context, m *models.Message) error
}

// BlobPurger removes attachment blobs after a message soft delete.
type BlobPurger interface {
	Purge(ctx context.Context, urls []string) error
}

type Options struct {
	TypingWindow  time.Duration
	SendBuffer    int
	AutoJoinLimit int64
}

func (o *Options) defaults() {
	if o.TypingWindow == 0 {
		o.TypingWindow = 3 * time.Second
	}
	if o.SendBuffer == 0 {
		o.SendBuffer = 256
	}
	if o.AutoJoinLimit == 0 {
		o.AutoJoinLimit = 500
	}
}

// Gateway authenticates sockets, routes inbound domain events and fans the
// resulting canonical events back out to room members.
type Gateway struct {
	repo      repository.Repository
	registry  *registry.Registry
	rooms     *rooms.Manager
	presence  *presence.Tracker
	typing    *typingTracker
	validator TokenValidator
	publisher MessagePublisher
	purger    BlobPurger
	log       *zap.SugaredLogger
	opts      Options
}

func New(
	repo repository.Repository,
	reg *registry.Registry,
	rm *rooms.Manager,
	pt *presence.Tracker,
	validator TokenValidator,
	publisher MessagePublisher,
	purger BlobPurger,
	log *zap.SugaredLogger,
	opts Options,
) *Gateway {
	opts.defaults()
	return &Gateway{
		repo:      repo,
		registry:  reg,
		rooms:     rm,
		presence:  pt,
		typing:    newTypingTracker(opts.TypingWindow),
		validator: validator,
		publisher: publisher,
		purger:    purger,
		log:       log,
		opts:      opts,
	}
}

// Authenticate runs handshake verification. A failure closes the connection
// before any registration happens.
func (g *Gateway) Authenticate(token string) (string, error) {
	uid, err := g.validator.Validate(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrAuthentication, err)
	}
	return uid, nil
}

// Connect registers an authenticated socket: registry entry, room
// auto-join, and the offline→online presence broadcast when this is the
// user's first socket.
func (g *Gateway) Connect(ctx context.Context, c *connection.Client) {
	first, epoch := g.registry.Register(c.UserID, c)
	connectionsOpened.Inc()

	chatIDs, err := g.repo.ChatIDsForUser(ctx, c.UserID, g.opts.AutoJoinLimit)
	if err != nil {
		// the socket still works; clients can join-chat explicitly
		g.log.Warnw("auto-join scan failed", "user", c.UserID, "err", err)
	}
	for _, id := range chatIDs {
		g.rooms.Join(c, id)
	}

	if first {
		targets, ev, err := g.presence.OnConnect(ctx, c.UserID, epoch)
		if err != nil {
			g.log.Warnw("presence connect broadcast failed", "user", c.UserID, "err", err)
			return
		}
		if ev.UserID != "" {
			g.broadcastStatus(targets, ev)
		}
	}
}

// Disconnect tears the socket down: room subscriptions, registry entry, and
// the online→offline presence broadcast when it was the user's last socket.
func (g *Gateway) Disconnect(ctx context.Context, c *connection.Client) {
	g.rooms.LeaveAll(c)
	last, lastSeen, epoch := g.registry.Unregister(c.UserID, c)
	c.Close()
	connectionsClosed.Inc()

	if last {
		targets, ev, err := g.presence.OnDisconnect(ctx, c.UserID, lastSeen, epoch)
		if err != nil {
			g.log.Warnw("presence disconnect broadcast failed", "user", c.UserID, "err", err)
			return
		}
		if ev.UserID != "" {
			g.broadcastStatus(targets, ev)
		}
	}
}

// Dispatch routes one inbound frame. Failures become a local error event on
// the offending socket only; nothing is broadcast.
func (g *Gateway) Dispatch(ctx context.Context, c *connection.Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		g.sendError(c, fmt.Errorf("%w: malformed frame", apperr.ErrValidation))
		return
	}
	eventsIn.WithLabelValues(env.Event).Inc()

	var err error
	switch env.Event {
	case EvSendMessage:
		err = g.handleSendMessage(ctx, c, env.Data)
	case EvEditMessage:
		err = g.handleEditMessage(ctx, c, env.Data)
	case EvDeleteMessage:
		err = g.handleDeleteMessage(ctx, c, env.Data)
	case EvAddReaction:
		err = g.handleAddReaction(ctx, c, env.Data)
	case EvTyping:
		err = g.handleTyping(ctx, c, env.Data, true)
	case EvStopTyping:
		err = g.handleTyping(ctx, c, env.Data, false)
	case EvMarkRead:
		err = g.handleMarkRead(ctx, c, env.Data)
	case EvUpdateStatus:
		err = g.handleUpdateStatus(ctx, c, env.Data)
	case EvJoinChat:
		err = g.handleJoinChat(ctx, c, env.Data)
	default:
		err = fmt.Errorf("%w: unknown event %q", apperr.ErrValidation, env.Event)
	}
	if err != nil {
		g.sendError(c, err)
	}
}

// EmitToUsers delivers a collaborator-triggered event to every live socket
// of the listed users.
func (g *Gateway) EmitToUsers(event string, userIDs []string, data any) {
	frame := encode(event, data)
	for _, uid := range userIDs {
		g.sendToUser(uid, frame)
	}
}

// EmitToChat delivers a collaborator-triggered event to a room.
func (g *Gateway) EmitToChat(event, chatID string, data any) {
	g.broadcastToRoom(chatID, event, data, "")
}

func (g *Gateway) sendError(c *connection.Client, err error) {
	code := apperr.Code(err)
	if code == "INTERNAL" {
		g.log.Errorw("handler failure", "user", c.UserID, "err", err)
	} else {
		g.log.Debugw("handler rejected", "user", c.UserID, "code", code, "err", err)
	}
	c.TrySend(encode(EvError, errorPayload{Code: code, Message: err.Error()}))
}

// broadcastToRoom fans a frame out to a snapshot of the room. Delivery is
// best-effort and independent per socket; a full buffer drops the frame for
// that socket only.
func (g *Gateway) broadcastToRoom(chatID, event string, data any, excludeUser string) {
	frame := encode(event, data)
	for _, member := range g.rooms.Members(chatID) {
		if excludeUser != "" && member.UserID == excludeUser {
			continue
		}
		if member.TrySend(frame) {
			eventsOut.WithLabelValues(event).Inc()
		} else {
			droppedFrames.Inc()
		}
	}
}

func (g *Gateway) sendToUser(userID string, frame []byte) {
	for _, c := range g.registry.Connections(userID) {
		if c.TrySend(frame) {
			eventsOut.WithLabelValues("direct").Inc()
		} else {
			droppedFrames.Inc()
		}
	}
}

func (g *Gateway) broadcastStatus(targets []string, ev models.StatusEvent) {
	frame := encode(EvStatusChange, ev)
	seen := make(map[string]struct{}, len(targets))
	for _, uid := range targets {
		// exactly once per relation per transition
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		g.sendToUser(uid, frame)
	}
}

// participantChat loads the chat and verifies the caller belongs to it.
func (g *Gateway) participantChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: missing chat_id", apperr.ErrValidation)
	}
	chat, err := g.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: chat %s", apperr.ErrNotFound, chatID)
		}
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of %s", apperr.ErrAuthorization, chatID)
	}
	return chat, nil
}
