package realtime

import (
	"sync"

	"messenger/pkg/logger"
)

// Rooms хранит подписки подключений на комнаты чатов
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Conn     // chat id -> conn id -> conn
	joined  map[string]map[string]struct{} // conn id -> chat ids
	log     logger.Logger
}

func NewRooms(log logger.Logger) *Rooms {
	return &Rooms{
		members: make(map[string]map[string]Conn),
		joined:  make(map[string]map[string]struct{}),
		log:     log,
	}
}

// Join идемпотентен, возвращает true при новом вступлении
func (r *Rooms) Join(conn Conn, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[chatID]
	if !ok {
		room = make(map[string]Conn)
		r.members[chatID] = room
	}
	if _, already := room[conn.ID()]; already {
		return false
	}
	room[conn.ID()] = conn

	chats, ok := r.joined[conn.ID()]
	if !ok {
		chats = make(map[string]struct{})
		r.joined[conn.ID()] = chats
	}
	chats[chatID] = struct{}{}
	return true
}

func (r *Rooms) Leave(conn Conn, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), chatID)
}

// LeaveAll выводит подключение из всех комнат, вызывается при отключении
func (r *Rooms) LeaveAll(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chatID := range r.joined[conn.ID()] {
		r.leaveLocked(conn.ID(), chatID)
	}
	delete(r.joined, conn.ID())
}

func (r *Rooms) leaveLocked(connID, chatID string) {
	if room, ok := r.members[chatID]; ok {
		delete(room, connID)
		// Пустые комнаты удаляем
		if len(room) == 0 {
			delete(r.members, chatID)
		}
	}
	if chats, ok := r.joined[connID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(r.joined, connID)
		}
	}
}

// BroadcastToChat отправляет событие всем подключениям комнаты, включая
// отправителя, если он в ней. Возвращает число успешных постановок в очередь.
func (r *Rooms) BroadcastToChat(chatID, event string, payload any) int {
	r.mu.RLock()
	room := r.members[chatID]
	targets := make([]Conn, 0, len(room))
	for _, c := range room {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Emit(event, payload); err != nil {
			r.log.Warn("Failed to emit to room member", "chat_id", chatID, "conn_id", c.ID(), "event", event, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Rooms) IsMember(conn Conn, chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[chatID][conn.ID()]
	return ok
}

func (r *Rooms) Size(chatID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[chatID])
}

func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
