package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfazAli25/NexusChat/internal/connection"
	"github.com/AlfazAli25/NexusChat/internal/logger"
	"github.com/AlfazAli25/NexusChat/internal/models"
	"github.com/AlfazAli25/NexusChat/internal/presence"
	"github.com/AlfazAli25/NexusChat/internal/registry"
	"github.com/AlfazAli25/NexusChat/internal/rooms"
)

type testEnv struct {
	repo   *fakeRepo
	reg    *registry.Registry
	rooms  *rooms.Manager
	purger *fakePurger
	gw     *Gateway
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	reg := registry.New()
	rm := rooms.New()
	tracker := presence.NewTracker(repo, reg, nil, logger.Nop())
	purger := &fakePurger{}
	gw := New(repo, reg, rm, tracker, fakeValidator{}, nil, purger, logger.Nop(), opts)
	return &testEnv{repo: repo, reg: reg, rooms: rm, purger: purger, gw: gw}
}

// connect registers a socket for uid and subscribes it to its chats the way
// the handshake path does.
func (e *testEnv) connect(uid string) *connection.Client {
	c := connection.NewClient(uid, uid+"-sock", 64)
	e.gw.Connect(context.Background(), c)
	drain(c) // discard the user's own status broadcast
	return c
}

func dispatch(e *testEnv, c *connection.Client, event string, payload any) {
	raw, _ := json.Marshal(payload)
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	e.gw.Dispatch(context.Background(), c, frame)
}

// recv pops one queued frame, failing the test when none is pending.
func recv(t *testing.T, c *connection.Client) (string, map[string]any) {
	t.Helper()
	select {
	case frame := <-c.Send():
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		var data map[string]any
		if len(env.Data) > 0 {
			require.NoError(t, json.Unmarshal(env.Data, &data))
		}
		return env.Event, data
	default:
		t.Fatal("no frame queued")
		return "", nil
	}
}

func drain(c *connection.Client) {
	for {
		select {
		case <-c.Send():
		default:
			return
		}
	}
}

func pending(c *connection.Client) int {
	return len(c.Send())
}

func TestSendMessagePersistsThenBroadcasts(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{
		ChatID: chat.ID, Content: "hello", ClientKey: "ck-1",
	})

	for _, c := range []*connection.Client{alice, bob} {
		ev, data := recv(t, c)
		assert.Equal(t, EvNewMessage, ev)
		assert.Equal(t, "hello", data["content"])
		assert.Equal(t, "alice", data["sender_id"])
		assert.Equal(t, "ck-1", data["client_key"], "idempotency key must be echoed")
		assert.Equal(t, string(models.StatusSent), data["status"])

		ev, data = recv(t, c)
		assert.Equal(t, EvChatUpdated, ev)
		assert.Equal(t, chat.ID, data["chat_id"])
	}

	stored, err := e.repo.GetChat(context.Background(), chat.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "hello", stored.LastMessage.Content)
}

func TestSendMessageOrderingWithinRoom(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "first"})
	dispatch(e, bob, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "second"})

	// every member observes new-message for M1 strictly before M2
	for _, c := range []*connection.Client{alice, bob} {
		var got []string
		for pending(c) > 0 {
			ev, data := recv(t, c)
			if ev == EvNewMessage {
				got = append(got, data["content"].(string))
			}
		}
		assert.Equal(t, []string{"first", "second"}, got)
	}
}

func TestSendMessageRoomIsolation(t *testing.T) {
	e := newTestEnv(t, Options{})
	// same participants under two chat ids; events must stay scoped
	chatA := e.repo.addChat(&models.Chat{Type: models.ChatGroup, Participants: []string{"alice", "bob"}, Admins: []string{"alice"}})
	e.repo.addChat(&models.Chat{Type: models.ChatGroup, Participants: []string{"alice", "bob"}, Admins: []string{"alice"}})
	outsider := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"carol", "dave"}})

	alice := e.connect("alice")
	carol := e.connect("carol")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chatA.ID, Content: "scoped"})

	assert.NotZero(t, pending(alice))
	assert.Zero(t, pending(carol), "user outside chat %s must receive nothing", chatA.ID)
	_ = outsider
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	mallory := e.connect("mallory")

	dispatch(e, mallory, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "hi"})

	ev, data := recv(t, mallory)
	assert.Equal(t, EvError, ev)
	assert.Equal(t, "FORBIDDEN", data["code"])
	assert.Zero(t, pending(alice), "nothing may be broadcast on an authorization failure")
}

func TestSendMessagePersistenceFailureAbortsBeforeBroadcast(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")
	e.repo.failInsert = true

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "lost"})

	ev, data := recv(t, alice)
	assert.Equal(t, EvError, ev)
	assert.Equal(t, "PERSISTENCE", data["code"])
	assert.Zero(t, pending(bob))
}

func TestSendMessageBumpFailureSkipsChatUpdated(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")
	e.repo.failBump = true

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "hello"})

	// the message is persisted, so it is still delivered
	for _, c := range []*connection.Client{alice, bob} {
		ev, data := recv(t, c)
		assert.Equal(t, EvNewMessage, ev)
		assert.Equal(t, "hello", data["content"])
		assert.Zero(t, pending(c), "chat-updated must not carry an unpersisted pointer")
	}
}

func TestEditMessagePreconditions(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "typo"})
	_, data := recv(t, alice)
	msgID := data["id"].(string)
	drain(alice)
	drain(bob)

	// only the sender may edit
	dispatch(e, bob, EvEditMessage, editMessagePayload{MessageID: msgID, Content: "hijack"})
	ev, data := recv(t, bob)
	assert.Equal(t, EvError, ev)
	assert.Equal(t, "FORBIDDEN", data["code"])

	dispatch(e, alice, EvEditMessage, editMessagePayload{MessageID: msgID, Content: "fixed"})
	ev, data = recv(t, bob)
	assert.Equal(t, EvMessageEdited, ev)
	assert.Equal(t, "fixed", data["content"])
	assert.Equal(t, true, data["is_edited"])
}

func TestDeleteMessageByAdminPurgesAttachments(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{
		Type: models.ChatGroup, Participants: []string{"alice", "bob"}, Admins: []string{"bob"},
	})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{
		ChatID: chat.ID, Content: "pic", Type: string(models.MessageImage),
		Attachments: []string{"https://bucket.s3/x.png"},
	})
	_, data := recv(t, alice)
	msgID := data["id"].(string)
	drain(alice)
	drain(bob)

	// bob is not the sender, but he is a group admin
	dispatch(e, bob, EvDeleteMessage, deleteMessagePayload{MessageID: msgID})

	ev, data := recv(t, alice)
	assert.Equal(t, EvMessageDeleted, ev)
	assert.Equal(t, msgID, data["message_id"])
	assert.Equal(t, []string{"https://bucket.s3/x.png"}, e.purger.urls)

	stored, _ := e.repo.GetMessage(context.Background(), msgID)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, models.DeletedPlaceholder, stored.Content)
	assert.Empty(t, stored.Attachments)
}

func TestReactionToggleParity(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "react to me"})
	_, data := recv(t, alice)
	msgID := data["id"].(string)
	drain(alice)
	drain(bob)

	react := func() []any {
		dispatch(e, bob, EvAddReaction, reactionPayload{MessageID: msgID, Emoji: "👍"})
		ev, data := recv(t, bob)
		require.Equal(t, EvReactionUpdated, ev)
		drain(alice)
		if data["reactions"] == nil {
			return nil
		}
		return data["reactions"].([]any)
	}

	assert.Len(t, react(), 1, "odd application leaves exactly one instance")
	assert.Len(t, react(), 0, "even application has empty net effect")
	assert.Len(t, react(), 1)

	dispatch(e, bob, EvAddReaction, reactionPayload{MessageID: msgID, Emoji: ""})
	ev, data := recv(t, bob)
	assert.Equal(t, EvError, ev)
	assert.Equal(t, "INVALID", data["code"])
}

func TestTypingBroadcastExcludesSenderAndExpires(t *testing.T) {
	e := newTestEnv(t, Options{TypingWindow: 30 * time.Millisecond})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvTyping, typingPayload{ChatID: chat.ID})

	ev, data := recv(t, bob)
	assert.Equal(t, EvUserTyping, ev)
	assert.Equal(t, "alice", data["user_id"])
	assert.Zero(t, pending(alice), "sender must not receive their own typing event")

	// no stop-typing arrives; the quiet window clears the flag
	require.Eventually(t, func() bool { return pending(bob) > 0 }, time.Second, 5*time.Millisecond)
	ev, data = recv(t, bob)
	assert.Equal(t, EvUserStopTyping, ev)
	assert.Equal(t, "alice", data["user_id"])
}

func TestStopTypingCancelsExpiry(t *testing.T) {
	e := newTestEnv(t, Options{TypingWindow: 30 * time.Millisecond})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvTyping, typingPayload{ChatID: chat.ID})
	recv(t, bob) // user-typing
	dispatch(e, alice, EvStopTyping, typingPayload{ChatID: chat.ID})
	ev, _ := recv(t, bob)
	assert.Equal(t, EvUserStopTyping, ev)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, pending(bob), "expiry must not fire a second stop-typing")
}

func TestMarkReadEscalatesToSeen(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvSendMessage, sendMessagePayload{ChatID: chat.ID, Content: "read me"})
	_, data := recv(t, alice)
	msgID := data["id"].(string)
	drain(alice)
	drain(bob)

	dispatch(e, bob, EvMarkRead, markReadPayload{ChatID: chat.ID, MessageIDs: []string{msgID}})

	ev, data := recv(t, alice)
	assert.Equal(t, EvMessagesRead, ev)
	assert.Equal(t, "bob", data["reader_id"])
	states := data["messages"].([]any)
	require.Len(t, states, 1)
	st := states[0].(map[string]any)
	// bob is the only other participant, so the message is now seen
	assert.Equal(t, string(models.StatusSeen), st["status"])
}

func TestUpdateStatusRequiresLiveConnection(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.repo.friends["alice"] = []string{"bob"}

	alice := e.connect("alice")
	bob := e.connect("bob")

	dispatch(e, alice, EvUpdateStatus, updateStatusPayload{Status: "busy"})
	ev, data := recv(t, bob)
	assert.Equal(t, EvStatusChange, ev)
	assert.Equal(t, "busy", data["status"])

	// after the last socket closes, explicit status changes are rejected
	drain(alice)
	e.gw.Disconnect(context.Background(), alice)
	ghost := connection.NewClient("alice", "ghost", 8)
	dispatch(e, ghost, EvUpdateStatus, updateStatusPayload{Status: "away"})
	ev, data = recv(t, ghost)
	assert.Equal(t, EvError, ev)
	assert.Equal(t, "INVALID", data["code"])
}

func TestPresenceBroadcastOnConnectAndLastDisconnect(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.repo.friends["alice"] = []string{"bob"}

	bob := e.connect("bob")

	s1 := connection.NewClient("alice", "s1", 64)
	e.gw.Connect(context.Background(), s1)
	ev, data := recv(t, bob)
	assert.Equal(t, EvStatusChange, ev)
	assert.Equal(t, string(models.PresenceOnline), data["status"])

	// a second socket is not a transition
	s2 := connection.NewClient("alice", "s2", 64)
	e.gw.Connect(context.Background(), s2)
	assert.Zero(t, pending(bob))

	// closing one of two sockets is not a transition either
	e.gw.Disconnect(context.Background(), s1)
	assert.Zero(t, pending(bob))

	e.gw.Disconnect(context.Background(), s2)
	ev, data = recv(t, bob)
	assert.Equal(t, EvStatusChange, ev)
	assert.Equal(t, string(models.PresenceOffline), data["status"])
	assert.NotNil(t, data["last_seen"])
}

func TestJoinChatUnauthorizedSilentlyIgnored(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	mallory := e.connect("mallory")
	dispatch(e, mallory, EvJoinChat, joinChatPayload{ChatID: chat.ID})

	// no error event and no membership: probing must be indistinguishable
	assert.Zero(t, pending(mallory))
	assert.Empty(t, e.rooms.Members(chat.ID))
}

func TestAutoJoinOnConnect(t *testing.T) {
	e := newTestEnv(t, Options{})
	chat := e.repo.addChat(&models.Chat{Type: models.ChatPrivate, Participants: []string{"alice", "bob"}})

	alice := e.connect("alice")
	require.Len(t, e.rooms.Members(chat.ID), 1)

	// join-chat after the handshake scan is idempotent
	dispatch(e, alice, EvJoinChat, joinChatPayload{ChatID: chat.ID})
	assert.Len(t, e.rooms.Members(chat.ID), 1)
}

func TestEmitDeliversCollaboratorEvents(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice := e.connect("alice")

	e.gw.EmitToUsers(EvNewFriendRequest, []string{"alice", "nobody"}, map[string]any{"from": "bob"})

	ev, data := recv(t, alice)
	assert.Equal(t, EvNewFriendRequest, ev)
	assert.Equal(t, "bob", data["from"])
}

func TestDeliverableAllowsCollaboratorEventsOnly(t *testing.T) {
	e := newTestEnv(t, Options{})
	assert.True(t, e.gw.Deliverable(EvGroupCreated))
	assert.True(t, e.gw.Deliverable(EvNewFriendRequest))
	assert.False(t, e.gw.Deliverable(EvNewMessage), "socket-originated events cannot be injected by collaborators")
	assert.False(t, e.gw.Deliverable("made-up-event"))
}

func TestUnknownEventYieldsValidationError(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice := e.connect("alice")

	e.gw.Dispatch(context.Background(), alice, []byte(`{"event":"self-destruct"}`))
	ev, data := recv(t, alice)
	assert.Equal(t, EvError, ev)
	assert.Equal(t, "INVALID", data["code"])

	e.gw.Dispatch(context.Background(), alice, []byte(`not json`))
	ev, _ = recv(t, alice)
	assert.Equal(t, EvError, ev)
}
