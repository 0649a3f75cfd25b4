package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/cache/local"
	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *local.Bus, *httptest.Server) {
	t.Helper()
	bus := local.NewBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, bus, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func publish(t *testing.T, bus *local.Bus, marketID string, line float64) {
	t.Helper()
	payload, _ := json.Marshal(domain.LineUpdate{MarketID: marketID, Side: domain.SideOver, NewLine: line})
	if err := bus.Publish(context.Background(), domain.ChannelLineUpdates, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestHubRelaysLineUpdates(t *testing.T) {
	hub, bus, srv := startHub(t)
	conn := dial(t, srv)

	if env := readEnvelope(t, conn); env.Type != TypeHello {
		t.Fatalf("first frame = %s, want hello", env.Type)
	}

	publish(t, bus, "m1", 26)
	env := readEnvelope(t, conn)
	if env.Type != TypeLineUpdate {
		t.Fatalf("type = %s", env.Type)
	}
	var lu domain.LineUpdate
	if err := json.Unmarshal(env.Payload, &lu); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if lu.MarketID != "m1" || lu.NewLine != 26 {
		t.Fatalf("update = %+v", lu)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("clients = %d", n)
	}
}

func TestHubWatchFilter(t *testing.T) {
	hub, bus, srv := startHub(t)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	if err := conn.WriteJSON(watchMsg{Action: "watch", Markets: []string{"m2"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !filtered(hub, "m1") {
		if time.Now().After(deadline) {
			t.Fatal("watch never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	publish(t, bus, "m1", 11)
	publish(t, bus, "m2", 31)
	var lu domain.LineUpdate
	if err := json.Unmarshal(readEnvelope(t, conn).Payload, &lu); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if lu.MarketID != "m2" || lu.NewLine != 31 {
		t.Fatalf("update = %+v, want m2 only", lu)
	}
}

// filtered reports whether every connected client ignores marketID.
func filtered(h *Hub, marketID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return false
	}
	for c := range h.clients {
		if c.watches(marketID) {
			return false
		}
	}
	return true
}

func TestHelloQueuedBeforeRegister(t *testing.T) {
	hub := NewHub(local.NewBus(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	// Stand in for Run shutting down the moment the client registers.
	queued := make(chan int, 1)
	go func() {
		c := <-hub.register
		queued <- len(c.send)
		close(c.send)
		close(hub.done)
	}()

	conn := dial(t, srv)
	select {
	case n := <-queued:
		if n != 1 {
			t.Fatalf("frames queued at register = %d, want hello", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never registered")
	}
	if env := readEnvelope(t, conn); env.Type != TypeHello {
		t.Fatalf("first frame = %s, want hello", env.Type)
	}
}
