package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	c := NewClient("u1", "s1", 2)
	assert.True(t, c.TrySend([]byte("1")))
	assert.True(t, c.TrySend([]byte("2")))
	assert.False(t, c.TrySend([]byte("3")), "a slow consumer drops instead of blocking")

	<-c.Send()
	assert.True(t, c.TrySend([]byte("4")))
}

func TestCloseIsIdempotentAndStopsSends(t *testing.T) {
	c := NewClient("u1", "s1", 2)
	c.Close()
	c.Close()
	assert.False(t, c.TrySend([]byte("x")), "send after close is a no-op")

	_, ok := <-c.Send()
	assert.False(t, ok, "channel is closed for the write pump")
}
