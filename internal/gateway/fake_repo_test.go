package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/AlfazAli25/NexusChat/internal/apperr"
	"github.com/AlfazAli25/NexusChat/internal/models"
	"github.com/AlfazAli25/NexusChat/internal/repository"
)

// fakeRepo is an in-memory Repository with the same single-document
// semantics the Mongo implementation relies on.
type fakeRepo struct {
	mu       sync.Mutex
	chats    map[string]*models.Chat
	messages map[string]*models.Message
	friends  map[string][]string
	nextID   int

	failInsert bool // simulate a persistence outage
	failBump   bool // fail only the last-message pointer update
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		chats:    make(map[string]*models.Chat),
		messages: make(map[string]*models.Message),
		friends:  make(map[string][]string),
	}
}

func (f *fakeRepo) addChat(c *models.Chat) *models.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		f.nextID++
		c.ID = "chat-" + strconv.Itoa(f.nextID)
	}
	f.chats[c.ID] = c
	return c
}

func (f *fakeRepo) FindOrCreatePrivateChat(ctx context.Context, a, b string) (*models.Chat, error) {
	key := repository.PairKey(a, b)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.Type == models.ChatPrivate && c.PairKey == key {
			return c, nil
		}
	}
	f.nextID++
	c := &models.Chat{
		ID:           "chat-" + strconv.Itoa(f.nextID),
		Type:         models.ChatPrivate,
		Participants: []string{a, b},
		PairKey:      key,
	}
	f.chats[c.ID] = c
	return c, nil
}

func (f *fakeRepo) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) ChatIDsForUser(ctx context.Context, userID string, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, c := range f.chats {
		if c.IsParticipant(userID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepo) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return nil, fmt.Errorf("%w: connection reset", apperr.ErrPersistence)
	}
	f.nextID++
	m.ID = "m-" + strconv.Itoa(f.nextID)
	cp := *m
	f.messages[m.ID] = &cp
	return m, nil
}

func (f *fakeRepo) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeRepo) EditMessage(ctx context.Context, id, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.IsDeleted {
		return nil, apperr.ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	cp := *m
	return &cp, nil
}

func (f *fakeRepo) SoftDeleteMessage(ctx context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	purged := m.Attachments
	m.IsDeleted = true
	m.Content = models.DeletedPlaceholder
	m.Attachments = nil
	return purged, nil
}

func (f *fakeRepo) ToggleReaction(ctx context.Context, id, userID, emoji string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if m.HasReaction(userID, emoji) {
		out := m.Reactions[:0]
		for _, r := range m.Reactions {
			if !(r.UserID == userID && r.Emoji == emoji) {
				out = append(out, r)
			}
		}
		m.Reactions = out
	} else {
		m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, Emoji: emoji})
	}
	cp := *m
	cp.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return &cp, nil
}

func (f *fakeRepo) MarkMessagesRead(ctx context.Context, chatID, readerID string, ids []string) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	var out []*models.Message
	for _, id := range ids {
		m, ok := f.messages[id]
		if !ok {
			return nil, apperr.ErrNotFound
		}
		already := false
		for _, r := range m.ReadBy {
			if r.UserID == readerID {
				already = true
			}
		}
		if !already {
			m.ReadBy = append(m.ReadBy, models.ReadReceipt{UserID: readerID})
		}
		if m.Status != models.StatusSeen && repository.SeenByAllOthers(m, chat.Participants) {
			m.Status = models.StatusSeen
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) UpdateChatLastMessage(ctx context.Context, chatID string, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBump {
		return fmt.Errorf("%w: connection reset", apperr.ErrPersistence)
	}
	if c, ok := f.chats[chatID]; ok {
		c.LastMessage = m
	}
	return nil
}

func (f *fakeRepo) LeaveGroup(ctx context.Context, chatID, userID string) (*models.Chat, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok {
		return nil, false, apperr.ErrNotFound
	}
	participants, admins, deleted := repository.NextGroupState(c.Participants, c.Admins, userID)
	if deleted {
		delete(f.chats, chatID)
		return nil, true, nil
	}
	c.Participants = participants
	c.Admins = admins
	cp := *c
	return &cp, false, nil
}

func (f *fakeRepo) Friends(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends[userID], nil
}

// fakePurger records purge calls.
type fakePurger struct {
	mu   sync.Mutex
	urls []string
}

func (p *fakePurger) Purge(ctx context.Context, urls []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, urls...)
	return nil
}

// fakeValidator maps token strings straight to user ids.
type fakeValidator struct{}

func (fakeValidator) Validate(token string) (string, error) {
	if token == "" {
		return "", apperr.ErrAuthentication
	}
	return token, nil
}
