package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	deliverTimeout      = 5 * time.Second
)

type SendMessageRequest struct {
	ChatID       string             `json:"chat_id"`
	SenderID     string             `json:"sender_id,omitempty"`
	Type         domain.MessageType `json:"type,omitempty"`
	Text         string             `json:"text,omitempty"`
	AudioRef     string             `json:"audio_ref,omitempty"`
	Duration     float64            `json:"duration,omitempty"`
	FileRef      string             `json:"file_ref,omitempty"`
	FileName     string             `json:"file_name,omitempty"`
	FileCategory string             `json:"file_category,omitempty"`
	MimeType     string             `json:"mime_type,omitempty"`
	Size         int64              `json:"size,omitempty"`
}

// MessageService ведет сообщение по статусам sent -> delivered -> read
// и рассылает каждое изменение в комнату чата
type MessageService interface {
	Send(ctx context.Context, req SendMessageRequest) (*domain.MessageView, error)
	// MarkRead возвращает nil без ошибки, если менять нечего
	MarkRead(ctx context.Context, messageID, userID string) (*domain.StatusUpdate, error)
	History(ctx context.Context, chatID, userID string, limit int) ([]*domain.MessageView, error)
	PendingDeliveries() int
	// Close ждет срабатывания всех запланированных delivered таймеров
	Close(ctx context.Context) error
}

type messageService struct {
	messageRepo repository.MessageRepository
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	directory   ChatDirectory
	broadcaster Broadcaster
	blobs       BlobResolver
	delay       time.Duration
	log         logger.Logger

	// порядок событий одного чата: запись и рассылка под одним замком
	locks *ChatLocks

	timers  sync.WaitGroup
	pending atomic.Int64
	closed  atomic.Bool
}

func NewMessageService(
	repos *repository.Repositories,
	directory ChatDirectory,
	locks *ChatLocks,
	broadcaster Broadcaster,
	blobs BlobResolver,
	deliveredDelay time.Duration,
	log logger.Logger,
) MessageService {
	return &messageService{
		messageRepo: repos.Message,
		chatRepo:    repos.Chat,
		userRepo:    repos.User,
		directory:   directory,
		locks:       locks,
		broadcaster: broadcaster,
		blobs:       blobs,
		delay:       deliveredDelay,
		log:         log,
	}
}

func (s *messageService) Send(ctx context.Context, req SendMessageRequest) (*domain.MessageView, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: server is shutting down", apperrors.ErrConflict)
	}

	msg, err := buildMessage(req)
	if err != nil {
		return nil, err
	}

	sender, err := s.userRepo.GetByID(ctx, msg.SenderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, apperrors.ErrUserNotFound
	}

	lock := s.locks.For(msg.ChatID)
	lock.Lock()
	view, receivers, err := s.persistLocked(ctx, msg, sender)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	s.log.Debug("Message sent", "message_id", msg.ID, "chat_id", msg.ChatID, "receivers", receivers)
	s.scheduleDelivery(msg.ID, msg.ChatID)
	return view, nil
}

// persistLocked вызывается под замком чата. Участие проверяется здесь же,
// чтобы удаление чата или участника не проскочило между проверкой и записью.
func (s *messageService) persistLocked(ctx context.Context, msg *domain.Message, sender *domain.User) (*domain.MessageView, int, error) {
	chat, err := s.chatRepo.GetByID(ctx, msg.ChatID)
	if err != nil {
		return nil, 0, err
	}
	if chat == nil {
		return nil, 0, apperrors.ErrChatNotFound
	}
	if !chat.HasParticipant(msg.SenderID) {
		return nil, 0, apperrors.ErrNotParticipant
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		s.log.Error("Failed to save message", "chat_id", msg.ChatID, "error", err)
		return nil, 0, err
	}
	if err := s.directory.RecordNewMessage(ctx, msg.ChatID, msg.ID, msg.CreatedAt); err != nil {
		// без чата сообщение не должно остаться ни в хранилище, ни у клиентов
		s.log.Warn("Failed to update chat pointer, dropping message", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		if delErr := s.messageRepo.Delete(ctx, msg.ID); delErr != nil {
			s.log.Error("Failed to drop orphan message", "message_id", msg.ID, "error", delErr)
		}
		return nil, 0, err
	}

	view := messageView(msg, sender, s.blobs)
	receivers := s.broadcaster.BroadcastToChat(msg.ChatID, domain.EventReceiveMessage, view)
	return view, receivers, nil
}

func (s *messageService) scheduleDelivery(messageID, chatID string) {
	s.timers.Add(1)
	s.pending.Add(1)
	time.AfterFunc(s.delay, func() {
		defer s.timers.Done()
		defer s.pending.Add(-1)
		s.deliver(messageID, chatID)
	})
}

// deliver переводит sent в delivered. Если сообщение уже delivered или read,
// ничего не пишет и не рассылает.
func (s *messageService) deliver(messageID, chatID string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Panic in delivery timer", "message_id", messageID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	lock := s.locks.For(chatID)
	lock.Lock()
	defer lock.Unlock()

	advanced := false
	msg, err := s.messageRepo.Update(ctx, messageID, func(m *domain.Message) error {
		if !m.Status.Advances(domain.MessageStatusDelivered) {
			return repository.ErrSkipUpdate
		}
		m.Status = domain.MessageStatusDelivered
		advanced = true
		return nil
	})
	if err != nil {
		s.log.Error("Failed to mark message delivered", "message_id", messageID, "error", err)
		return
	}
	if msg == nil || !advanced {
		return
	}

	s.broadcaster.BroadcastToChat(chatID, domain.EventMessageStatusUpdated, &domain.StatusUpdate{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		Status:    domain.MessageStatusDelivered,
	})
}

func (s *messageService) MarkRead(ctx context.Context, messageID, userID string) (*domain.StatusUpdate, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("%w: message id is required", apperrors.ErrValidation)
	}

	current, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	// Отсутствующее сообщение - тихий no-op
	if current == nil {
		return nil, nil
	}
	if userID != "" {
		ok, err := s.directory.IsParticipant(ctx, current.ChatID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.ErrNotParticipant
		}
	}

	lock := s.locks.For(current.ChatID)
	lock.Lock()
	defer lock.Unlock()

	advanced := false
	msg, err := s.messageRepo.Update(ctx, messageID, func(m *domain.Message) error {
		if !m.Status.Advances(domain.MessageStatusRead) {
			return repository.ErrSkipUpdate
		}
		m.Status = domain.MessageStatusRead
		m.Read = true
		advanced = true
		return nil
	})
	if err != nil {
		s.log.Error("Failed to mark message read", "message_id", messageID, "error", err)
		return nil, err
	}
	if msg == nil || !advanced {
		return nil, nil
	}

	update := &domain.StatusUpdate{MessageID: msg.ID, ChatID: msg.ChatID, Status: domain.MessageStatusRead}
	s.broadcaster.BroadcastToChat(msg.ChatID, domain.EventMessageStatusUpdated, update)
	return update, nil
}

func (s *messageService) History(ctx context.Context, chatID, userID string, limit int) ([]*domain.MessageView, error) {
	ok, err := s.directory.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotParticipant
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := s.messageRepo.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	senders := make(map[string]*domain.User)
	views := make([]*domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender, seen := senders[m.SenderID]
		if !seen {
			sender, err = s.userRepo.GetByID(ctx, m.SenderID)
			if err != nil {
				return nil, err
			}
			senders[m.SenderID] = sender
		}
		views = append(views, messageView(m, sender, s.blobs))
	}
	return views, nil
}

func (s *messageService) PendingDeliveries() int {
	return int(s.pending.Load())
}

func (s *messageService) Close(ctx context.Context) error {
	s.closed.Store(true)

	done := make(chan struct{})
	go func() {
		s.timers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d pending deliveries: %w", s.PendingDeliveries(), ctx.Err())
	}
}

// buildMessage проверяет обязательные поля варианта и собирает сообщение со статусом sent
func buildMessage(req SendMessageRequest) (*domain.Message, error) {
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", apperrors.ErrValidation)
	}
	if req.SenderID == "" {
		return nil, fmt.Errorf("%w: sender id is required", apperrors.ErrValidation)
	}

	msgType := req.Type
	if msgType == "" {
		switch {
		case req.AudioRef != "":
			msgType = domain.MessageTypeVoice
		case req.FileRef != "":
			msgType = domain.MessageTypeFile
		default:
			msgType = domain.MessageTypeText
		}
	}

	msg := &domain.Message{
		ChatID:   req.ChatID,
		SenderID: req.SenderID,
		Type:     msgType,
		Text:     req.Text,
		Status:   domain.MessageStatusSent,
	}

	switch msgType {
	case domain.MessageTypeText:
		if strings.TrimSpace(req.Text) == "" && req.AudioRef == "" && req.FileRef == "" {
			return nil, fmt.Errorf("%w: message text or attachment is required", apperrors.ErrValidation)
		}
		msg.AudioRef = req.AudioRef
		msg.FileRef = req.FileRef
		msg.FileName = req.FileName
	case domain.MessageTypeVoice:
		if req.AudioRef == "" {
			return nil, fmt.Errorf("%w: audio reference is required", apperrors.ErrValidation)
		}
		if req.Duration < 0 || req.Size < 0 {
			return nil, fmt.Errorf("%w: duration and size must not be negative", apperrors.ErrValidation)
		}
		msg.AudioRef = req.AudioRef
		msg.Duration = req.Duration
		msg.Size = req.Size
		msg.MimeType = req.MimeType
	case domain.MessageTypeFile:
		if req.FileRef == "" || strings.TrimSpace(req.FileName) == "" {
			return nil, fmt.Errorf("%w: file reference and name are required", apperrors.ErrValidation)
		}
		if req.Size < 0 {
			return nil, fmt.Errorf("%w: size must not be negative", apperrors.ErrValidation)
		}
		msg.FileRef = req.FileRef
		msg.FileName = req.FileName
		msg.Size = req.Size
		msg.MimeType = req.MimeType
		msg.FileCategory = req.FileCategory
		if msg.FileCategory == "" {
			msg.FileCategory = domain.FileCategoryFromMIME(req.MimeType)
		}
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", apperrors.ErrValidation, msgType)
	}
	return msg, nil
}
