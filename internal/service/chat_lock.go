package service

import (
	"hash/fnv"
	"sync"
)

const chatLockStripes = 64

// ChatLocks сериализует изменения одного чата: отправку сообщений,
// смену статусов и правку состава участников. Замок не реентерабельный.
type ChatLocks struct {
	stripes [chatLockStripes]sync.Mutex
}

func NewChatLocks() *ChatLocks {
	return &ChatLocks{}
}

// For возвращает замок полосы, в которую попадает чат
func (l *ChatLocks) For(chatID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(chatID))
	return &l.stripes[h.Sum32()%chatLockStripes]
}
