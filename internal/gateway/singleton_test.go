package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Concurrent find-or-create for the same unordered pair must converge on
// one chat id, never a duplicate. The repository keys private chats by the
// sorted pair, so creation races collapse onto a single record.
func TestFindOrCreatePrivateChatConverges(t *testing.T) {
	repo := newFakeRepo()

	const callers = 50
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a // argument order must not matter
			}
			chat, err := repo.FindOrCreatePrivateChat(context.Background(), a, b)
			assert.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, repo.chats, 1, "exactly one record may exist")
}
