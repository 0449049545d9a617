package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlfazAli25/NexusChat/internal/apperr"
	"github.com/AlfazAli25/NexusChat/internal/models"
)

// Relations resolves the stored relation (friend) set a transition is
// broadcast to.
type Relations interface {
	Friends(ctx context.Context, userID string) ([]string, error)
}

// OnlineChecker is satisfied by the connection registry. Epoch orders
// connection events per user; the tracker rejects transitions carrying an
// older epoch than the last one it applied.
type OnlineChecker interface {
	IsOnline(userID string) bool
	Epoch(userID string) uint64
}

// Mirror persists last-known presence outside the process (Redis); writes
// are best-effort.
type Mirror interface {
	SetPresence(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error
}

type state struct {
	status models.PresenceStatus
	epoch  uint64
}

// Tracker derives and serializes presence transitions. Transitions are
// last-write-wins keyed by the registry epoch of the connection event that
// caused them; the comparison happens under the tracker lock, so a stale
// flap can never publish over a fresher status.
type Tracker struct {
	mu    sync.Mutex
	users map[string]state

	relations Relations
	online    OnlineChecker
	mirror    Mirror
	log       *zap.SugaredLogger
}

func NewTracker(relations Relations, online OnlineChecker, mirror Mirror, log *zap.SugaredLogger) *Tracker {
	return &Tracker{
		users:     make(map[string]state),
		relations: relations,
		online:    online,
		mirror:    mirror,
		log:       log,
	}
}

// OnConnect records the offline→online transition. The caller invokes it
// only for the user's first live socket, passing the epoch its Register
// minted. A suppressed transition returns a zero StatusEvent.
func (t *Tracker) OnConnect(ctx context.Context, userID string, epoch uint64) ([]string, models.StatusEvent, error) {
	return t.transition(ctx, userID, models.PresenceOnline, nil, epoch)
}

// OnDisconnect records online→offline with the last-seen timestamp and
// epoch fixed by the registry at removal. Suppressed when the user
// reconnected in between: the reconnect carries a newer epoch.
func (t *Tracker) OnDisconnect(ctx context.Context, userID string, lastSeen time.Time, epoch uint64) ([]string, models.StatusEvent, error) {
	return t.transition(ctx, userID, models.PresenceOffline, &lastSeen, epoch)
}

// SetStatus applies a client-initiated away/busy/online change. Requires at
// least one live connection. The change rides the epoch of the user's
// current connection event, so a concurrent disconnect still wins.
func (t *Tracker) SetStatus(ctx context.Context, userID string, status models.PresenceStatus) ([]string, models.StatusEvent, error) {
	if !status.Valid() || status == models.PresenceOffline {
		return nil, models.StatusEvent{}, fmt.Errorf("%w: status %q", apperr.ErrValidation, status)
	}
	epoch := t.online.Epoch(userID)
	if !t.online.IsOnline(userID) {
		return nil, models.StatusEvent{}, fmt.Errorf("%w: cannot set status while offline", apperr.ErrValidation)
	}
	return t.transition(ctx, userID, status, nil, epoch)
}

// Status returns the last recorded status, defaulting to offline.
func (t *Tracker) Status(userID string) models.PresenceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.users[userID]; ok {
		return s.status
	}
	return models.PresenceOffline
}

func (t *Tracker) transition(ctx context.Context, userID string, status models.PresenceStatus, lastSeen *time.Time, epoch uint64) ([]string, models.StatusEvent, error) {
	t.mu.Lock()
	if epoch < t.users[userID].epoch {
		t.mu.Unlock()
		return nil, models.StatusEvent{}, nil
	}
	if status == models.PresenceOffline && t.online.IsOnline(userID) {
		// a newer socket registered while the old one was tearing down
		t.mu.Unlock()
		return nil, models.StatusEvent{}, nil
	}
	t.users[userID] = state{status: status, epoch: epoch}
	t.mu.Unlock()

	ev := models.StatusEvent{
		UserID:   userID,
		Status:   status,
		LastSeen: lastSeen,
		At:       time.Now().UTC(),
	}
	if t.mirror != nil {
		seen := ev.At
		if lastSeen != nil {
			seen = *lastSeen
		}
		if err := t.mirror.SetPresence(ctx, userID, status, seen); err != nil {
			t.log.Warnw("presence mirror write failed", "user", userID, "err", err)
		}
	}

	targets, err := t.relations.Friends(ctx, userID)
	if err != nil {
		return nil, models.StatusEvent{}, fmt.Errorf("%w: load relations: %v", apperr.ErrPersistence, err)
	}
	// the user's own other devices track status too
	targets = append(targets, userID)
	return targets, ev, nil
}
