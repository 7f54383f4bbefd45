package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendNilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Send(nil, Event{Level: Info, Title: "x"}) })
}

func TestSendSwallowsListenerPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Send(func(Event) { panic("toast container gone") }, Event{Level: Error})
	})
}

func TestSendStampsTime(t *testing.T) {
	var got Event
	Send(func(e Event) { got = e }, Event{Level: Success, Title: "Created"})
	assert.False(t, got.Time.IsZero())
}

func TestRelayFanOutAndUnsubscribe(t *testing.T) {
	r := NewRelay()
	var a, b []Event
	unsubA := r.Subscribe(func(e Event) { a = append(a, e) })
	r.Subscribe(func(e Event) { b = append(b, e) })

	r.Publish(Event{Title: "one"})
	unsubA()
	r.Publish(Event{Title: "two"})

	assert.Len(t, a, 1)
	assert.Len(t, b, 2)
}

func TestNilRelay(t *testing.T) {
	var r *Relay
	assert.NotPanics(t, func() { r.Publish(Event{}) })
	assert.Nil(t, r.Func())
}

func TestHubBroadcastsToWebsocketClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	relay := NewRelay()
	relay.Subscribe(hub.Notify)
	relay.Publish(Event{Level: Success, Title: "Created articles"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, Notification, msg.Type)

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "Created articles", ev.Title)
}

func TestHubDropsClientThatStopsAnsweringPings(t *testing.T) {
	hub := NewHub(zap.NewNop(), []string{"*"})
	hub.pongWait = 150 * time.Millisecond
	hub.pingPeriod = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// A reading client answers pings through the default ping handler.
	live, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer live.Close()
	go func() {
		for {
			if _, _, err := live.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// This one never reads, so it never sends a pong.
	silent, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer silent.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(3 * hub.pongWait)
	assert.Equal(t, 1, hub.Clients())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://site.example"})
	req := httptest.NewRequest("GET", "/api/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
	req.Header.Set("Origin", "https://site.example")
	assert.True(t, check(req))
}
