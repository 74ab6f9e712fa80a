package service

// Broadcaster рассылает событие всем подключениям, вступившим в комнату чата.
// Возвращает число подключений, которым событие поставлено в очередь.
type Broadcaster interface {
	BroadcastToChat(chatID, event string, payload any) int
}

// Emitter - одно живое подключение
type Emitter interface {
	Emit(event string, payload any) error
}

// PeerDirectory находит подключение пользователя для сигналинга звонков
type PeerDirectory interface {
	Lookup(userID string) (Emitter, bool)
}
