package ws

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(userID string) *Client {
	return &Client{
		conn:   nil, // Not needed for hub tests
		userID: userID,
		send:   make(chan Message, 256),
		logger: zap.NewNop(),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient("user-1")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}

	// Send channel must be closed after unregister.
	if _, ok := <-client.send; ok {
		t.Error("client.send channel is not closed")
	}
}

func TestUnregisterTwice(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient("user-1")

	hub.Register(client)
	hub.Unregister(client)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Unregister() panicked: %v", r)
		}
	}()
	hub.Unregister(client)
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client1 := newTestClient("user-1")
	client2 := newTestClient("user-2")
	hub.Register(client1)
	hub.Register(client2)

	msg := Message{
		Type:      MessageProbeFailed,
		Timestamp: time.Now(),
		Data:      map[string]string{"checkId": "chk-1"},
	}
	hub.Broadcast(msg)

	for i, client := range []*Client{client1, client2} {
		select {
		case received := <-client.send:
			if received.Type != MessageProbeFailed {
				t.Errorf("client %d received Type = %v, want %v", i+1, received.Type, MessageProbeFailed)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i+1)
		}
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient("user-1")
	hub.Register(client)

	for i := 0; i < cap(client.send); i++ {
		client.send <- Message{Type: MessageAuditRecorded, Timestamp: time.Now()}
	}

	// Must not block even though the buffer is full.
	hub.Broadcast(Message{Type: MessageProbeFailed, Timestamp: time.Now()})

	if len(client.send) != cap(client.send) {
		t.Errorf("buffer length = %d, want %d", len(client.send), cap(client.send))
	}
	if received := <-client.send; received.Type == MessageProbeFailed {
		t.Error("dropped message was unexpectedly received")
	}
}

func TestConcurrentRegisterBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client := newTestClient(string(rune('a' + id)))
			hub.Register(client)
			go func() {
				for range client.send {
				}
			}()
			time.Sleep(5 * time.Millisecond)
			hub.Unregister(client)
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{Type: MessageAuditRecorded, Timestamp: time.Now()})
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after all unregister", hub.ClientCount())
	}
}
