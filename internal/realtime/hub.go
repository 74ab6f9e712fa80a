package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

const handlerTimeout = 10 * time.Second

type Stats struct {
	Connections       int `json:"connections"`
	Rooms             int `json:"rooms"`
	RegisteredUsers   int `json:"registered_users"`
	ActiveCalls       int `json:"active_calls"`
	PendingDeliveries int `json:"pending_deliveries"`
}

// Hub принимает события подключений и раскладывает их по сервисам.
// Жизненный цикл клиентов идет через Run, как в классическом hub с каналами.
type Hub struct {
	presence *Presence
	rooms    *Rooms
	messages service.MessageService
	calls    service.CallService
	chats    service.ChatDirectory
	users    service.UserService
	cfg      config.RealtimeConfig
	timings  clientTimings
	log      logger.Logger

	register    chan *Client
	unregister  chan *Client
	clients     map[*Client]struct{}
	connections atomic.Int64

	// записи в хранилище, вынесенные из цикла Run
	background sync.WaitGroup

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewHub(presence *Presence, rooms *Rooms, services *service.Services, cfg config.RealtimeConfig, log logger.Logger) *Hub {
	return &Hub{
		presence: presence,
		rooms:    rooms,
		messages: services.Message,
		calls:    services.Call,
		chats:    services.Chat,
		users:    services.User,
		cfg:      cfg,
		timings: clientTimings{
			writeWait:      cfg.WriteWait,
			pongWait:       cfg.PongWait,
			pingPeriod:     (cfg.PongWait * 9) / 10,
			maxMessageSize: cfg.MaxMessageSize,
		},
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

func (h *Hub) Run() {
	h.log.Info("WebSocket hub started")
	defer close(h.stopped)

	refresh := time.NewTicker(service.PresenceRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connections.Add(1)
			c.log.Debug("Client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.connections.Add(-1)
				h.Disconnect(c)
				c.log.Debug("Client disconnected")
			}

		case <-refresh.C:
			users := h.presence.Users()
			h.goBackground(func(ctx context.Context) {
				h.users.TouchPresence(ctx, users)
			})

		case <-h.done:
			for c := range h.clients {
				h.Disconnect(c)
				c.Close()
			}
			h.clients = make(map[*Client]struct{})
			h.connections.Store(0)
			h.log.Info("WebSocket hub stopped")
			return
		}
	}
}

// Shutdown закрывает все подключения, ждет выхода из Run и фоновых записей
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.done) })
	select {
	case <-h.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return h.waitBackground(ctx)
}

func (h *Hub) goBackground(fn func(ctx context.Context)) {
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (h *Hub) waitBackground(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for presence writes: %w", ctx.Err())
	}
}

// ServeClient запускает насосы для уже принятого websocket соединения
func (h *Hub) ServeClient(conn *websocket.Conn, userID string) {
	c := newClient(h, conn, userID)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Disconnect снимает подключение с реестра присутствия и из всех комнат.
// Если пользователь пропал из реестра, его звонок завершается.
// Статус offline пишется в фоне и не держит вызывающего.
func (h *Hub) Disconnect(conn Conn) {
	users := h.presence.Unregister(conn)
	for _, userID := range users {
		h.calls.PeerDisconnected(userID)
	}
	h.rooms.LeaveAll(conn)

	if len(users) == 0 {
		return
	}
	h.goBackground(func(ctx context.Context) {
		for _, userID := range users {
			// пользователь успел переподключиться
			if _, back := h.presence.Lookup(userID); back {
				continue
			}
			if err := h.users.SetOnline(ctx, userID, false); err != nil {
				h.log.Warn("Failed to mark user offline", "user_id", userID, "error", err)
			}
		}
	})
}

func (h *Hub) Stats() Stats {
	return Stats{
		Connections:       int(h.connections.Load()),
		Rooms:             h.rooms.Count(),
		RegisteredUsers:   h.presence.Count(),
		ActiveCalls:       h.calls.ActiveCalls(),
		PendingDeliveries: h.messages.PendingDeliveries(),
	}
}

// HandleFrame разбирает одно входящее событие и отвечает через ack, если он запрошен.
// Ошибки никогда не выходят за пределы обработчика.
func (h *Hub) HandleFrame(conn Conn, raw []byte) {
	var f inFrame
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Panic in event handler", "event", f.Event, "conn_id", conn.ID(), "panic", r)
			h.reply(conn, f, nil, apperrors.ErrInternalServer)
		}
	}()

	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		conn.Emit(domain.EventError, &ErrorPayload{Error: "malformed event"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	data, err := h.dispatch(ctx, conn, f)
	if err != nil && apperrors.HTTPStatusFromError(err) >= 500 {
		h.log.Error("Event handler failed", "event", f.Event, "user_id", conn.UserID(), "error", err)
	}
	h.reply(conn, f, data, err)
}

func (h *Hub) reply(conn Conn, f inFrame, data any, err error) {
	if f.Ack > 0 {
		ack := AckPayload{Success: err == nil, Data: data}
		if err != nil {
			ack.Error = apperrors.PublicMessage(err)
			ack.Data = nil
		}
		conn.Ack(f.Ack, ack)
		return
	}
	if err != nil {
		conn.Emit(domain.EventError, &ErrorPayload{Event: f.Event, Error: apperrors.PublicMessage(err)})
	}
}

func (h *Hub) dispatch(ctx context.Context, conn Conn, f inFrame) (any, error) {
	switch f.Event {
	case domain.EventJoinRoom:
		return h.joinRoom(ctx, conn, f.Data)
	case domain.EventLeaveRoom:
		return h.leaveRoom(conn, f.Data)
	case domain.EventSendMessage:
		return h.sendMessage(ctx, conn, f.Data, "")
	case domain.EventSendVoiceMessage:
		return h.sendMessage(ctx, conn, f.Data, domain.MessageTypeVoice)
	case domain.EventSendFileMessage:
		return h.sendMessage(ctx, conn, f.Data, domain.MessageTypeFile)
	case domain.EventMarkMessageRead:
		return h.markRead(ctx, conn, f.Data)
	case domain.EventRegisterUser:
		return h.registerUser(ctx, conn, f.Data)
	case domain.EventCallUser:
		return nil, h.callUser(conn, f.Data)
	case domain.EventAcceptCall:
		var req acceptCallRequest
		if err := decode(f.Data, &req); err != nil {
			return nil, err
		}
		return nil, h.calls.Accept(conn.UserID(), req.To, req.Answer)
	case domain.EventRejectCall:
		var req peerRequest
		if err := decode(f.Data, &req); err != nil {
			return nil, err
		}
		return nil, h.calls.Reject(conn.UserID(), req.To)
	case domain.EventEndCall:
		var req peerRequest
		if err := decode(f.Data, &req); err != nil {
			return nil, err
		}
		return nil, h.calls.End(conn.UserID(), req.To, req.Reason)
	case domain.EventICECandidate:
		var req iceCandidateRequest
		if err := decode(f.Data, &req); err != nil {
			return nil, err
		}
		return nil, h.calls.RelayICE(conn.UserID(), req.To, req.Candidate)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", apperrors.ErrValidation, f.Event)
	}
}

func (h *Hub) joinRoom(ctx context.Context, conn Conn, raw json.RawMessage) (any, error) {
	chatID := decodeChatID(raw)
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", apperrors.ErrValidation)
	}

	if h.cfg.AuthorizeJoin {
		ok, err := h.chats.IsParticipant(ctx, chatID, conn.UserID())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.ErrNotParticipant
		}
	}

	h.rooms.Join(conn, chatID)
	return &chatRef{ChatID: chatID}, nil
}

func (h *Hub) leaveRoom(conn Conn, raw json.RawMessage) (any, error) {
	chatID := decodeChatID(raw)
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", apperrors.ErrValidation)
	}
	h.rooms.Leave(conn, chatID)
	return &chatRef{ChatID: chatID}, nil
}

func (h *Hub) sendMessage(ctx context.Context, conn Conn, raw json.RawMessage, msgType domain.MessageType) (any, error) {
	var req service.SendMessageRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	// Отправитель всегда тот, кто прошел аутентификацию на сокете
	if req.SenderID != "" && req.SenderID != conn.UserID() {
		return nil, fmt.Errorf("%w: sender does not match the connection", apperrors.ErrForbidden)
	}
	req.SenderID = conn.UserID()
	if msgType != "" {
		req.Type = msgType
	}

	return h.messages.Send(ctx, req)
}

func (h *Hub) markRead(ctx context.Context, conn Conn, raw json.RawMessage) (any, error) {
	var req markReadRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	update, err := h.messages.MarkRead(ctx, req.MessageID, conn.UserID())
	if err != nil || update == nil {
		return nil, err
	}
	return update, nil
}

func (h *Hub) registerUser(ctx context.Context, conn Conn, raw json.RawMessage) (any, error) {
	userID := decodeUserID(raw)
	if userID == "" {
		userID = conn.UserID()
	}
	if userID != conn.UserID() {
		return nil, fmt.Errorf("%w: cannot register as another user", apperrors.ErrForbidden)
	}

	if prev := h.presence.Register(userID, conn); prev != nil {
		h.log.Debug("Presence moved to a new connection", "user_id", userID, "old_conn", prev.ID(), "new_conn", conn.ID())
	}
	if err := h.users.SetOnline(ctx, userID, true); err != nil {
		h.log.Warn("Failed to mark user online", "user_id", userID, "error", err)
	}
	return &userRef{UserID: userID}, nil
}

func (h *Hub) callUser(conn Conn, raw json.RawMessage) error {
	var req callUserRequest
	if err := decode(raw, &req); err != nil {
		return err
	}

	err := h.calls.Initiate(conn.UserID(), req.To, req.Offer, req.ChatID)
	switch {
	case errors.Is(err, apperrors.ErrOfflineTarget):
		conn.Emit(domain.EventCallFailed, &service.CallFailedPayload{To: req.To, Reason: service.CallFailReasonOffline})
	case errors.Is(err, apperrors.ErrPeerBusy):
		conn.Emit(domain.EventCallFailed, &service.CallFailedPayload{To: req.To, Reason: service.CallFailReasonBusy})
	}
	return err
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: event data is required", apperrors.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed event data", apperrors.ErrValidation)
	}
	return nil
}
