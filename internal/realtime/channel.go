// README: Change-notification channel contract and websocket implementation.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
	StatusClosed       ChannelStatus = "CLOSED"
)

// ChangeEvent is a remote-store change notification. The engine never patches
// incrementally from it; any event triggers a full reload.
type ChangeEvent struct {
	Table    string `json:"table"`
	Type     string `json:"type"` // INSERT | UPDATE | DELETE
	RecordID int64  `json:"record_id"`
}

// Channel is one subscription to a table's change stream.
type Channel interface {
	Subscribe(ctx context.Context, table string, onEvent func(ChangeEvent), onStatus func(ChannelStatus)) error
	Close() error
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

// WSChannel subscribes to the store's realtime gateway over a websocket.
type WSChannel struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

func NewWSChannel(url string, log *zap.Logger) *WSChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSChannel{url: url, log: log}
}

type subscribeFrame struct {
	Event string `json:"event"`
	Table string `json:"table"`
}

func (c *WSChannel) Subscribe(ctx context.Context, table string, onEvent func(ChangeEvent), onStatus func(ChannelStatus)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial realtime gateway: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(subscribeFrame{Event: "subscribe", Table: table}); err != nil {
		conn.Close()
		return fmt.Errorf("send subscribe frame: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	onStatus(StatusSubscribed)

	go c.pingLoop(conn, done)
	go c.readLoop(conn, done, onEvent, onStatus)
	return nil
}

func (c *WSChannel) readLoop(conn *websocket.Conn, done chan struct{}, onEvent func(ChangeEvent), onStatus func(ChannelStatus)) {
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				onStatus(StatusTimedOut)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				onStatus(StatusClosed)
			default:
				onStatus(StatusChannelError)
			}
			return
		}
		var ev ChangeEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.log.Warn("malformed change event", zap.Error(err))
			continue
		}
		onEvent(ev)
	}
}

func (c *WSChannel) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
