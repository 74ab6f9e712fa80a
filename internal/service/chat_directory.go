package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type ChatDirectory interface {
	// ResolveParticipants молча пропускает id, которые уже не резолвятся
	ResolveParticipants(ctx context.Context, chat *domain.Chat) ([]*domain.User, error)
	FindOrCreatePrivate(ctx context.Context, userA, userB string) (*domain.Chat, error)
	// RecordNewMessage не берет замок чата: его держит вызывающий
	RecordNewMessage(ctx context.Context, chatID, messageID string, at time.Time) error
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)

	Get(ctx context.Context, chatID, userID string) (*domain.ChatView, error)
	View(ctx context.Context, chat *domain.Chat) (*domain.ChatView, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.ChatView, error)
	CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (*domain.Chat, error)
	UpdateGroup(ctx context.Context, chatID, userID string, name, avatar *string) (*domain.Chat, error)
	AddParticipants(ctx context.Context, chatID, userID string, participantIDs []string) (*domain.Chat, error)
	// RemoveParticipant возвращает true, если чат удален из-за нехватки участников
	RemoveParticipant(ctx context.Context, chatID, actorID, userID string) (bool, error)
	DeleteChat(ctx context.Context, chatID, userID string) error
}

type chatDirectory struct {
	chatRepo    repository.ChatRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	locks       *ChatLocks
	blobs       BlobResolver
	log         logger.Logger
}

func NewChatDirectory(
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	locks *ChatLocks,
	blobs BlobResolver,
	log logger.Logger,
) ChatDirectory {
	return &chatDirectory{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		locks:       locks,
		blobs:       blobs,
		log:         log,
	}
}

func (d *chatDirectory) ResolveParticipants(ctx context.Context, chat *domain.Chat) ([]*domain.User, error) {
	users := make([]*domain.User, 0, len(chat.Participants))
	for _, id := range chat.Participants {
		u, err := d.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			d.log.Debug("Dropping stale participant", "chat_id", chat.ID, "user_id", id)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (d *chatDirectory) FindOrCreatePrivate(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("%w: both participants are required", apperrors.ErrValidation)
	}
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot start a private chat with yourself", apperrors.ErrValidation)
	}
	for _, id := range []string{userA, userB} {
		u, err := d.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, apperrors.ErrUserNotFound
		}
	}

	chat, created, err := d.chatRepo.FindOrCreatePrivate(ctx, userA, userB, func() *domain.Chat {
		return &domain.Chat{
			Name:          domain.PrivateChatName,
			Type:          domain.ChatTypePrivate,
			Participants:  []string{userA, userB},
			CreatedBy:     userA,
			LastMessageAt: time.Now().UTC(),
		}
	})
	if err != nil {
		return nil, err
	}
	if created {
		d.log.Info("Private chat created", "chat_id", chat.ID, "user_a", userA, "user_b", userB)
	}
	return chat, nil
}

func (d *chatDirectory) RecordNewMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	chat, err := d.chatRepo.Update(ctx, chatID, func(c *domain.Chat) error {
		c.LastMessage = messageID
		c.LastMessageAt = at
		return nil
	})
	if err != nil {
		return err
	}
	if chat == nil {
		return apperrors.ErrChatNotFound
	}
	return nil
}

func (d *chatDirectory) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	chat, err := d.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return false, err
	}
	if chat == nil {
		return false, apperrors.ErrChatNotFound
	}
	return chat.HasParticipant(userID), nil
}

func (d *chatDirectory) Get(ctx context.Context, chatID, userID string) (*domain.ChatView, error) {
	chat, err := d.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return d.View(ctx, chat)
}

func (d *chatDirectory) View(ctx context.Context, chat *domain.Chat) (*domain.ChatView, error) {
	users, err := d.ResolveParticipants(ctx, chat)
	if err != nil {
		return nil, err
	}

	view := &domain.ChatView{
		ID:            chat.ID,
		Name:          chat.Name,
		Type:          chat.Type,
		Participants:  make([]domain.UserView, 0, len(users)),
		Avatar:        chat.Avatar,
		AvatarURL:     d.blobs.URL(chat.Avatar),
		CreatedBy:     chat.CreatedBy,
		LastMessageAt: chat.LastMessageAt,
		CreatedAt:     chat.CreatedAt,
		UpdatedAt:     chat.UpdatedAt,
	}
	byID := make(map[string]*domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
		view.Participants = append(view.Participants, userView(u, d.blobs))
	}

	// lastMessage - слабая ссылка, удаленное сообщение просто не показываем
	if chat.LastMessage != "" {
		msg, err := d.messageRepo.GetByID(ctx, chat.LastMessage)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			view.LastMessage = messageView(msg, byID[msg.SenderID], d.blobs)
		}
	}
	return view, nil
}

func (d *chatDirectory) ListForUser(ctx context.Context, userID string) ([]*domain.ChatView, error) {
	chats, err := d.chatRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastMessageAt.After(chats[j].LastMessageAt)
	})

	views := make([]*domain.ChatView, 0, len(chats))
	for _, c := range chats {
		v, err := d.View(ctx, c)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (d *chatDirectory) CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", apperrors.ErrValidation)
	}

	ids, err := d.existingUsers(ctx, append([]string{creatorID}, participantIDs...))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 || ids[0] != creatorID {
		return nil, apperrors.ErrUserNotFound
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least 2 participants", apperrors.ErrValidation)
	}

	chat := &domain.Chat{
		Name:          name,
		Type:          domain.ChatTypeGroup,
		Participants:  ids,
		CreatedBy:     creatorID,
		LastMessageAt: time.Now().UTC(),
	}
	if err := d.chatRepo.Create(ctx, chat); err != nil {
		return nil, err
	}

	d.log.Info("Group chat created", "chat_id", chat.ID, "creator", creatorID, "participants", len(ids))
	return chat, nil
}

func (d *chatDirectory) UpdateGroup(ctx context.Context, chatID, userID string, name, avatar *string) (*domain.Chat, error) {
	if _, err := d.groupChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, fmt.Errorf("%w: group name must not be empty", apperrors.ErrValidation)
	}

	chat, err := d.chatRepo.Update(ctx, chatID, func(c *domain.Chat) error {
		if name != nil {
			c.Name = strings.TrimSpace(*name)
		}
		if avatar != nil {
			c.Avatar = *avatar
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperrors.ErrChatNotFound
	}
	return chat, nil
}

func (d *chatDirectory) AddParticipants(ctx context.Context, chatID, userID string, participantIDs []string) (*domain.Chat, error) {
	if _, err := d.groupChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	ids, err := d.existingUsers(ctx, participantIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no valid users to add", apperrors.ErrValidation)
	}

	lock := d.locks.For(chatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := d.chatRepo.Update(ctx, chatID, func(c *domain.Chat) error {
		added := false
		for _, id := range ids {
			if !c.HasParticipant(id) {
				c.Participants = append(c.Participants, id)
				added = true
			}
		}
		if !added {
			return repository.ErrSkipUpdate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperrors.ErrChatNotFound
	}
	return chat, nil
}

func (d *chatDirectory) RemoveParticipant(ctx context.Context, chatID, actorID, userID string) (bool, error) {
	lock := d.locks.For(chatID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := d.groupChat(ctx, chatID, actorID); err != nil {
		return false, err
	}

	chat, err := d.chatRepo.Update(ctx, chatID, func(c *domain.Chat) error {
		kept := make([]string, 0, len(c.Participants))
		for _, id := range c.Participants {
			if id != userID {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(c.Participants) {
			return fmt.Errorf("%w: user is not in this chat", apperrors.ErrNotFound)
		}
		c.Participants = kept
		return nil
	})
	if err != nil {
		return false, err
	}
	if chat == nil {
		return false, apperrors.ErrChatNotFound
	}

	if len(chat.Participants) <= 1 {
		if err := d.deleteCascade(ctx, chatID); err != nil {
			return false, err
		}
		d.log.Info("Group chat deleted after last participant left", "chat_id", chatID)
		return true, nil
	}
	return false, nil
}

func (d *chatDirectory) DeleteChat(ctx context.Context, chatID, userID string) error {
	lock := d.locks.For(chatID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := d.participantChat(ctx, chatID, userID); err != nil {
		return err
	}
	return d.deleteCascade(ctx, chatID)
}

// deleteCascade удаляет сначала сообщения, потом сам чат. Вызывается под замком чата.
func (d *chatDirectory) deleteCascade(ctx context.Context, chatID string) error {
	n, err := d.messageRepo.DeleteByChat(ctx, chatID)
	if err != nil {
		d.log.Error("Failed to delete chat messages", "chat_id", chatID, "error", err)
		return err
	}
	if err := d.chatRepo.Delete(ctx, chatID); err != nil {
		d.log.Error("Failed to delete chat", "chat_id", chatID, "error", err)
		return err
	}
	d.log.Info("Chat deleted", "chat_id", chatID, "messages", n)
	return nil
}

func (d *chatDirectory) participantChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := d.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperrors.ErrChatNotFound
	}
	if !chat.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	return chat, nil
}

func (d *chatDirectory) groupChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := d.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat.Type != domain.ChatTypeGroup {
		return nil, fmt.Errorf("%w: operation is only allowed for group chats", apperrors.ErrValidation)
	}
	return chat, nil
}

// existingUsers убирает дубликаты и несуществующие id, сохраняя порядок
func (d *chatDirectory) existingUsers(ctx context.Context, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		u, err := d.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			out = append(out, id)
		}
	}
	return out, nil
}
