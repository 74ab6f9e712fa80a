package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"messenger/internal/domain"
	"messenger/pkg/logger"
)

type clientTimings struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
}

// Client - websocket подключение: ReadPump разбирает входящие события,
// WritePump пишет исходящие и шлет ping.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	log    logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.cfg.SendQueueSize),
		log:    hub.log.With("conn_id", id, "user_id", userID),
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) Emit(event string, payload any) error {
	return c.write(outFrame{Event: event, Data: payload})
}

func (c *Client) Ack(id int64, payload AckPayload) error {
	return c.write(outFrame{Event: domain.EventAck, Data: payload, Ack: id})
}

func (c *Client) write(f outFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Event, err)
	}

	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Медленный клиент: закрываем, чтобы не блокировать рассылку
		c.log.Warn("Send buffer full, closing connection")
		c.Close()
		return ErrSlowClient
	}
}

// Close сигнализирует WritePump закрыть соединение. Безопасен для повторного вызова.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	t := c.hub.timings
	c.conn.SetReadLimit(t.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(t.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		c.hub.HandleFrame(c, message)
	}
}

func (c *Client) WritePump() {
	t := c.hub.timings
	ticker := time.NewTicker(t.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
