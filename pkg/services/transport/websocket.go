// Package transport keeps the streaming connection to the server open and
// hands every inbound message to a Handler.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"atlas-overwatch/pkg/shared"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 64

type Settings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
	}
}

// Handler receives decoded inbound messages.
type Handler interface {
	Handle(ctx context.Context, msg shared.Message) error
}

type HandlerFunc func(ctx context.Context, msg shared.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg shared.Message) error {
	return f(ctx, msg)
}

// Connection is a self-reconnecting websocket. Outbound messages are queued
// without blocking and dropped while the socket is down.
type Connection struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	handler  Handler
	settings *Settings

	send chan []byte
	open atomic.Bool
	done chan struct{}
	once sync.Once
}

func NewConnection(ctx context.Context, wsURL string, handler Handler, settings *Settings) *Connection {
	if settings == nil {
		settings = DefaultSettings()
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Connection{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      wsURL,
		handler:  handler,
		settings: settings,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// URL builds the streaming endpoint from the server base URL.
func URL(base, connection, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server url scheme: %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api"
	q := url.Values{}
	q.Set("format", "geojson")
	q.Set("connection", connection)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Connection) IsOpen() bool {
	return c.open.Load()
}

// SendCOT queues a message for the server. It never blocks.
func (c *Connection) SendCOT(data any, messageType string) {
	if !c.IsOpen() {
		return
	}
	if messageType == "" {
		messageType = shared.MessageCOT
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Transport] failed to marshal outbound %s: %v", messageType, err)
		return
	}
	frame, err := json.Marshal(shared.Message{Type: messageType, Data: raw})
	if err != nil {
		log.Printf("[Transport] failed to marshal outbound %s: %v", messageType, err)
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("[Transport] warning: send buffer full, dropping %s", messageType)
	}
}

// Close stops the reconnect loop and waits for it to exit.
func (c *Connection) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
}

func (c *Connection) run() {
	defer close(c.done)
	defer c.cancel()

	dialer := &websocket.Dialer{
		HandshakeTimeout: c.settings.HandshakeTimeout,
	}

	for {
		ws, _, err := dialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			log.Printf("[Transport] connect error: %v", err)
		} else {
			log.Println("[Transport] connected")
			c.serve(ws)
			log.Println("[Transport] disconnected")
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.settings.ReconnectTimeout):
		}
	}
}

func (c *Connection) serve(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	// drain anything queued against a previous socket
	for drained := false; !drained; {
		select {
		case <-c.send:
		default:
			drained = true
		}
	}

	c.open.Store(true)
	defer c.open.Store(false)

	go func() {
		defer handleCancel()
		// closing unblocks the reader
		defer ws.Close()
		ping := time.NewTicker(c.settings.PingTimeout)
		defer ping.Stop()

		for {
			select {
			case <-handleCtx.Done():
				ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.settings.WriteTimeout))
				return
			case frame := <-c.send:
				ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					log.Printf("[Transport] write error: %v", err)
					return
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout)); err != nil {
					log.Printf("[Transport] ping error: %v", err)
					return
				}
			}
		}
	}()

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})

	for {
		ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if handleCtx.Err() == nil {
				log.Printf("[Transport] read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg shared.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("[Transport] warning: failed to decode inbound message: %v", err)
			continue
		}
		if err := c.handler.Handle(handleCtx, msg); err != nil {
			log.Printf("[Transport] failed to handle %s message: %v", msg.Type, err)
		}
	}
}
