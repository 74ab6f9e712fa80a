package realtime

import (
	"sync"

	"messenger/internal/service"
)

// Presence хранит для каждого пользователя не больше одного подключения.
// Повторная регистрация заменяет старое подключение.
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]Conn
}

func NewPresence() *Presence {
	return &Presence{byUser: make(map[string]Conn)}
}

// Register возвращает подключение, которое было заменено, если оно было
func (p *Presence) Register(userID string, conn Conn) Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.byUser[userID]
	p.byUser[userID] = conn
	if prev == conn {
		return nil
	}
	return prev
}

// Unregister удаляет все записи, указывающие на conn, и возвращает их пользователей
func (p *Presence) Unregister(conn Conn) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []string
	for userID, c := range p.byUser {
		if c == conn {
			delete(p.byUser, userID)
			removed = append(removed, userID)
		}
	}
	return removed
}

func (p *Presence) Lookup(userID string) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.byUser[userID]
	return c, ok
}

func (p *Presence) Users() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		out = append(out, id)
	}
	return out
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// Directory отдает реестр сервису звонков
func (p *Presence) Directory() service.PeerDirectory {
	return peerDirectory{p}
}

type peerDirectory struct {
	p *Presence
}

func (d peerDirectory) Lookup(userID string) (service.Emitter, bool) {
	c, ok := d.p.Lookup(userID)
	if !ok {
		return nil, false
	}
	return c, true
}
