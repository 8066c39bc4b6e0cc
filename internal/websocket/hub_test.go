package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, organizationID string) *Client {
	return &Client{
		hub:            hub,
		organizationID: organizationID,
		send:           make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		require.NoError(t, json.Unmarshal(data, &got))
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
		return Message{}
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())

	c1 := mockClient(hub, "org-1")
	c2 := mockClient(hub, "org-1")

	hub.Register(c1)
	hub.Register(c2)
	assert.Equal(t, 2, hub.ClientCount())

	hub.Unregister(c1)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(c2)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	c := mockClient(hub, "org-1")
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	assert.Equal(t, 0, hub.ClientCount())
}

func TestBroadcastScopedToOrganization(t *testing.T) {
	hub := NewHub(testLogger())

	c1 := mockClient(hub, "org-1")
	c2 := mockClient(hub, "org-1")
	other := mockClient(hub, "org-2")
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)
	defer func() {
		hub.Unregister(c1)
		hub.Unregister(c2)
		hub.Unregister(other)
	}()

	hub.Broadcast(NewMessage("org-1", "invitation", "created", "inv-42", map[string]any{"email": "bob@example.com"}))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		assert.Equal(t, "invitation_created", got.Type)
		assert.Equal(t, "invitation", got.Entity)
		assert.Equal(t, "inv-42", got.ID)
		assert.Equal(t, "org-1", got.OrganizationID)
		assert.Equal(t, "bob@example.com", got.Extra["email"])
	}

	select {
	case <-other.send:
		t.Fatal("client of another organization received the message")
	default:
	}
}

func TestBroadcastWithoutOrganizationIsDropped(t *testing.T) {
	hub := NewHub(testLogger())
	c := mockClient(hub, "org-1")
	hub.Register(c)
	defer hub.Unregister(c)

	hub.Broadcast(NewMessage("", "invitation", "created", "inv-1", nil))

	assert.Empty(t, c.send)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Broadcast(NewMessage("org-1", "invitation", "cancelled", "inv-1", nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(testLogger())

	c := mockClient(hub, "org-1")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("org-1", "test", "fill", "", nil))
	}

	// Must drop rather than block.
	hub.Broadcast(NewMessage("org-1", "test", "dropped", "", nil))

	assert.Len(t, c.send, sendBufferSize)
	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("org-9", "invitation", "resent", "inv-5", nil)
	assert.Equal(t, Message{
		Type:           "invitation_resent",
		Entity:         "invitation",
		Action:         "resent",
		ID:             "inv-5",
		OrganizationID: "org-9",
	}, msg)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(testLogger())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "org-1")
			hub.Register(c)
			hub.Broadcast(NewMessage("org-1", "test", "concurrent", "", nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, hub.ClientCount())
}
