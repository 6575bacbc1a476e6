package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesClients(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)

	hub.Broadcast(event{Kind: "entity_created", Data: map[string]string{"id": "person_alice"}})

	select {
	case data := <-client.SendChan:
		var got event
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "entity_created", got.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not reach client")
	}
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	// Unbuffered channel with no reader fills immediately.
	slow := &MockClient{SendChan: make(chan []byte)}
	ok := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(slow)
	hub.Register(ok)

	hub.Broadcast(event{Kind: "ping"})

	select {
	case <-ok.SendChan:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy client did not receive message")
	}

	// The slow client's channel was closed by the hub.
	select {
	case _, open := <-slow.SendChan:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("slow client channel was not closed")
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)
	hub.Unregister(client)

	// Channel is closed on unregister.
	select {
	case _, open := <-client.SendChan:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("unregistered client channel was not closed")
	}
}
