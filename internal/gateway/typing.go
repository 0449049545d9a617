package gateway

import (
	"sync"
	"time"
)

type typingKey struct {
	chatID string
	userID string
}

type typingFlag struct {
	timer *time.Timer
	gen   uint64
}

// typingTracker holds the ephemeral per-(chat,user) typing flags. A flag
// auto-expires after the quiet window unless refreshed or cleared; nothing
// here is ever persisted.
type typingTracker struct {
	mu     sync.Mutex
	window time.Duration
	gen    uint64
	flags  map[typingKey]typingFlag
}

func newTypingTracker(window time.Duration) *typingTracker {
	return &typingTracker{
		window: window,
		flags:  make(map[typingKey]typingFlag),
	}
}

// Set marks the pair as typing and arms (or re-arms) the expiry timer.
// onExpire fires once if no stop-typing arrives within the window.
func (t *typingTracker) Set(chatID, userID string, onExpire func()) {
	key := typingKey{chatID, userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.flags[key]; ok {
		f.timer.Stop()
	}
	t.gen++
	gen := t.gen
	timer := time.AfterFunc(t.window, func() { t.expire(key, gen, onExpire) })
	t.flags[key] = typingFlag{timer: timer, gen: gen}
}

// expire clears the flag when its own timer fires. A refresh can replace
// the flag after the old timer fired but before this ran; a stale
// generation must leave the fresh flag untouched.
func (t *typingTracker) expire(key typingKey, gen uint64, onExpire func()) {
	t.mu.Lock()
	f, ok := t.flags[key]
	if !ok || f.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.flags, key)
	t.mu.Unlock()
	onExpire()
}

// Clear stops the flag; reports whether it was set.
func (t *typingTracker) Clear(chatID, userID string) bool {
	key := typingKey{chatID, userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.flags[key]
	if !ok {
		return false
	}
	f.timer.Stop()
	delete(t.flags, key)
	return true
}

// IsTyping reports whether the pair currently has a live flag.
func (t *typingTracker) IsTyping(chatID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.flags[typingKey{chatID, userID}]
	return ok
}
