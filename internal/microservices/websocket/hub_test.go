package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	c1 := &Client{ID: "c1"}
	c2 := &Client{ID: "c2"}

	assert.True(t, hub.Register(c1))
	assert.True(t, hub.Register(c2))
	assert.False(t, hub.Register(&Client{ID: "c1"}), "duplicate ID")
	assert.Equal(t, 2, hub.Count())

	assert.Same(t, c1, hub.clients["c1"])

	// unregistering a different client with the same ID is ignored
	hub.Unregister(&Client{ID: "c1"})
	assert.Equal(t, 2, hub.Count())

	hub.Unregister(c1)
	hub.Unregister(c1)
	assert.Equal(t, 1, hub.Count())
	assert.NotContains(t, hub.clients, "c1")
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	serverConn, _ := newConnPair(t)
	client := NewClient("c1", "", serverConn, hub, nil)
	hub.Register(client)

	hub.CloseAll()

	assert.Equal(t, 0, hub.Count())
	select {
	case <-client.Done():
	default:
		t.Fatal("client was not closed")
	}
}
