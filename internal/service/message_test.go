package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

func TestSendPersistsBroadcastsAndDelivers(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, err := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindOrCreatePrivate failed: %v", err)
	}

	view, err := env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if view.Status != domain.MessageStatusSent || view.Type != domain.MessageTypeText {
		t.Errorf("Unexpected view: %+v", view)
	}

	created := env.broadcaster.events(domain.EventReceiveMessage)
	if len(created) != 1 || created[0].chatID != chat.ID {
		t.Fatalf("Expected one receive-message for the chat, got %+v", created)
	}
	sent := created[0].payload.(*domain.MessageView)
	if sent.ID != view.ID || sent.Sender.Username != "alice" || sent.Sender.Avatar != "alice.png" {
		t.Errorf("Unexpected broadcast payload: %+v", sent)
	}

	env.waitDeliveries(t)

	updates := env.broadcaster.events(domain.EventMessageStatusUpdated)
	if len(updates) != 1 {
		t.Fatalf("Expected one status update, got %d", len(updates))
	}
	if u := updates[0].payload.(*domain.StatusUpdate); u.MessageID != view.ID || u.Status != domain.MessageStatusDelivered {
		t.Errorf("Unexpected status update: %+v", u)
	}

	stored, _ := env.repos.Message.GetByID(ctx, view.ID)
	if stored.Status != domain.MessageStatusDelivered {
		t.Errorf("Expected stored status delivered, got %s", stored.Status)
	}
	c, _ := env.repos.Chat.GetByID(ctx, chat.ID)
	if c.LastMessage != view.ID || !c.LastMessageAt.Equal(stored.CreatedAt) {
		t.Errorf("Expected chat pointer to the new message, got %s at %v", c.LastMessage, c.LastMessageAt)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	view, err := env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: "fast"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Читаем до срабатывания таймера delivered
	update, err := env.services.Message.MarkRead(ctx, view.ID, bob.ID)
	if err != nil || update == nil || update.Status != domain.MessageStatusRead {
		t.Fatalf("MarkRead: update=%+v err=%v", update, err)
	}

	env.waitDeliveries(t)

	stored, _ := env.repos.Message.GetByID(ctx, view.ID)
	if stored.Status != domain.MessageStatusRead || !stored.Read {
		t.Errorf("Expected read to stick, got %+v", stored)
	}
	for _, u := range env.broadcaster.events(domain.EventMessageStatusUpdated) {
		if u.payload.(*domain.StatusUpdate).Status == domain.MessageStatusDelivered {
			t.Errorf("Delivered must not be broadcast after read")
		}
	}

	again, err := env.services.Message.MarkRead(ctx, view.ID, bob.ID)
	if err != nil || again != nil {
		t.Errorf("Expected repeated read to be a no-op, got %+v, %v", again, err)
	}
	if n := len(env.broadcaster.events(domain.EventMessageStatusUpdated)); n != 1 {
		t.Errorf("Expected exactly one status broadcast, got %d", n)
	}
}

func TestMarkReadByOutsiderRejected(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	view, _ := env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: "secret"})
	env.waitDeliveries(t)

	if _, err := env.services.Message.MarkRead(ctx, view.ID, eve.ID); !errors.Is(err, apperrors.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	tests := []struct {
		name string
		req  SendMessageRequest
		want error
	}{
		{"no chat", SendMessageRequest{SenderID: alice.ID, Text: "x"}, apperrors.ErrValidation},
		{"blank text", SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: "   "}, apperrors.ErrValidation},
		{"voice without audio", SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Type: domain.MessageTypeVoice}, apperrors.ErrValidation},
		{"file without name", SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, FileRef: "f"}, apperrors.ErrValidation},
		{"unknown type", SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Type: "sticker", Text: "x"}, apperrors.ErrValidation},
		{"missing chat", SendMessageRequest{ChatID: "nope", SenderID: alice.ID, Text: "x"}, apperrors.ErrChatNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.services.Message.Send(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := len(env.broadcaster.events(domain.EventReceiveMessage)); n != 0 {
		t.Errorf("Expected no broadcasts, got %d", n)
	}
}

func TestSendVoiceMessage(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	view, err := env.services.Message.Send(ctx, SendMessageRequest{
		ChatID:   chat.ID,
		SenderID: alice.ID,
		AudioRef: "voice-1.webm",
		Duration: 3.5,
		Size:     4096,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if view.Type != domain.MessageTypeVoice || view.AudioURL != "https://cdn.example.com/files/voice-1.webm" {
		t.Errorf("Unexpected voice view: %+v", view)
	}
	env.waitDeliveries(t)
}

func TestConcurrentSendsKeepEveryMessage(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := alice.ID
			if i%2 == 1 {
				sender = bob.ID
			}
			if _, err := env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: sender, Text: fmt.Sprint(i)}); err != nil {
				t.Errorf("Send failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	env.waitDeliveries(t)

	msgs, _ := env.repos.Message.ListByChat(ctx, chat.ID)
	if len(msgs) != n {
		t.Fatalf("Expected %d messages, got %d", n, len(msgs))
	}

	// Порядок рассылки совпадает с порядком записи
	created := env.broadcaster.events(domain.EventReceiveMessage)
	if len(created) != n {
		t.Fatalf("Expected %d broadcasts, got %d", n, len(created))
	}
	byID := make(map[string]int, n)
	for i, m := range msgs {
		byID[m.ID] = i
	}
	for i := 1; i < len(created); i++ {
		prev := byID[created[i-1].payload.(*domain.MessageView).ID]
		cur := byID[created[i].payload.(*domain.MessageView).ID]
		if cur < prev {
			t.Fatalf("Broadcast order differs from store order at %d", i)
		}
	}

	c, _ := env.repos.Chat.GetByID(ctx, chat.ID)
	last := created[len(created)-1].payload.(*domain.MessageView).ID
	if c.LastMessage != last {
		t.Errorf("Expected last pointer %s, got %s", last, c.LastMessage)
	}
}

func TestHistoryReturnsLastMessagesAscending(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	for i := 0; i < 5; i++ {
		if _, err := env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	env.waitDeliveries(t)

	history, err := env.services.Message.History(ctx, chat.ID, bob.ID, 3)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 || history[0].Text != "2" || history[2].Text != "4" {
		t.Errorf("Unexpected history: %+v", history)
	}

	if _, err := env.services.Message.History(ctx, chat.ID, eve.ID, 0); !errors.Is(err, apperrors.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
}

func TestCloseRejectsNewSends(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	env.waitDeliveries(t)
	if _, err := env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: "late"}); err == nil {
		t.Errorf("Expected send after close to fail")
	}
}

// vanishingChatMessages удаляет чат сразу после записи сообщения,
// как если бы удаление пришло в обход замка чата
type vanishingChatMessages struct {
	repository.MessageRepository
	chats repository.ChatRepository
}

func (m *vanishingChatMessages) Create(ctx context.Context, msg *domain.Message) error {
	if err := m.MessageRepository.Create(ctx, msg); err != nil {
		return err
	}
	return m.chats.Delete(ctx, msg.ChatID)
}

func TestSendDropsMessageWhenChatVanishes(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chat, err := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindOrCreatePrivate failed: %v", err)
	}

	repos := *env.repos
	repos.Message = &vanishingChatMessages{MessageRepository: env.repos.Message, chats: env.repos.Chat}
	locks := NewChatLocks()
	blobs := NewBlobResolver("")
	directory := NewChatDirectory(repos.Chat, repos.Message, repos.User, locks, blobs, logger.Nop())
	messages := NewMessageService(&repos, directory, locks, env.broadcaster, blobs, time.Millisecond, logger.Nop())

	_, err = messages.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: alice.ID, Text: "hi"})
	if !errors.Is(err, apperrors.ErrChatNotFound) {
		t.Fatalf("Expected ErrChatNotFound, got %v", err)
	}

	left, err := env.repos.Message.ListByChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("ListByChat failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected no messages for the deleted chat, got %d", len(left))
	}
	if got := env.broadcaster.events(domain.EventReceiveMessage); len(got) != 0 {
		t.Errorf("Expected no receive-message broadcasts, got %d", len(got))
	}
	if n := messages.PendingDeliveries(); n != 0 {
		t.Errorf("Expected no pending deliveries, got %d", n)
	}
}

func TestSendRacingDeleteLeavesNoOrphans(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	for round := 0; round < 20; round++ {
		chat, err := env.services.Chat.CreateGroup(ctx, alice.ID, fmt.Sprintf("group-%d", round), []string{bob.ID})
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		var wg sync.WaitGroup
		sendErrs := make([]error, 5)
		for i := range sendErrs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, sendErrs[i] = env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: bob.ID, Text: "x"})
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.services.Chat.DeleteChat(ctx, chat.ID, alice.ID); err != nil {
				t.Errorf("DeleteChat failed: %v", err)
			}
		}()
		wg.Wait()

		for _, err := range sendErrs {
			if err != nil && !errors.Is(err, apperrors.ErrChatNotFound) {
				t.Errorf("Unexpected send error: %v", err)
			}
		}
		left, err := env.repos.Message.ListByChat(ctx, chat.ID)
		if err != nil {
			t.Fatalf("ListByChat failed: %v", err)
		}
		if len(left) != 0 {
			t.Fatalf("Round %d: %d messages outlived their chat", round, len(left))
		}
	}
}

func TestSendAfterRemovalRejected(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	chat, err := env.services.Chat.CreateGroup(ctx, alice.ID, "team", []string{bob.ID, carol.ID})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if _, err := env.services.Chat.RemoveParticipant(ctx, chat.ID, alice.ID, carol.ID); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	_, err = env.services.Message.Send(ctx, SendMessageRequest{ChatID: chat.ID, SenderID: carol.ID, Text: "still here?"})
	if !errors.Is(err, apperrors.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	if got := env.broadcaster.events(domain.EventReceiveMessage); len(got) != 0 {
		t.Errorf("Expected no broadcasts, got %d", len(got))
	}
}
