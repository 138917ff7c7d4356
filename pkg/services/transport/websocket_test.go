package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atlas-overwatch/pkg/shared"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func testSettings() *Settings {
	return &Settings{
		HandshakeTimeout: time.Second,
		ReconnectTimeout: 50 * time.Millisecond,
		PingTimeout:      time.Second,
		WriteTimeout:     time.Second,
		ReadTimeout:      5 * time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "https", base: "https://tak.example.com", want: "wss://tak.example.com/api?connection=c1&format=geojson&token=tok"},
		{name: "http with path", base: "http://localhost:5000/base/", want: "ws://localhost:5000/base/api?connection=c1&format=geojson&token=tok"},
		{name: "bad scheme", base: "ftp://example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URL(tt.base, "c1", "tok")
			if tt.wantErr {
				assert.NotEqual(t, err, nil)
				return
			}
			assert.Equal(t, err, nil)
			assert.Equal(t, got, tt.want)
		})
	}
}

func TestSendDroppedWhenClosed(t *testing.T) {
	handler := HandlerFunc(func(context.Context, shared.Message) error { return nil })
	conn := NewConnection(context.Background(), "ws://127.0.0.1:1/api", handler, testSettings())
	defer conn.Close()

	assert.Equal(t, conn.IsOpen(), false)
	conn.SendCOT(map[string]any{"id": "a"}, shared.MessageCOT)
	assert.Equal(t, len(conn.send), 0)
}

func TestRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"cot","data":{"id":"inbound"}}`))
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- message
		// hold the socket until the client goes away
		ws.ReadMessage()
	}))
	defer srv.Close()

	inbound := make(chan shared.Message, 1)
	handler := HandlerFunc(func(_ context.Context, msg shared.Message) error {
		inbound <- msg
		return nil
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn := NewConnection(context.Background(), wsURL, handler, testSettings())
	defer conn.Close()

	select {
	case msg := <-inbound:
		assert.Equal(t, msg.Type, shared.MessageCOT)
		assert.Equal(t, string(msg.Data), `{"id":"inbound"}`)
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound message")
	}

	waitFor(t, conn.IsOpen)
	conn.SendCOT(map[string]any{"id": "outbound"}, "")

	select {
	case frame := <-received:
		var msg shared.Message
		assert.Equal(t, json.Unmarshal(frame, &msg), nil)
		assert.Equal(t, msg.Type, shared.MessageCOT)
		assert.Equal(t, string(msg.Data), `{"id":"outbound"}`)
	case <-time.After(5 * time.Second):
		t.Fatal("no outbound message")
	}

	conn.Close()
	assert.Equal(t, conn.IsOpen(), false)
}
