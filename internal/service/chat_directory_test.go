package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
)

func TestFindOrCreatePrivateIsSymmetric(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	first, err := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindOrCreatePrivate failed: %v", err)
	}
	second, err := env.services.Chat.FindOrCreatePrivate(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("FindOrCreatePrivate failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected the same chat in both orders, got %s and %s", first.ID, second.ID)
	}
	if first.Type != domain.ChatTypePrivate || first.Name != domain.PrivateChatName {
		t.Errorf("Unexpected private chat: %+v", first)
	}

	chats, _ := env.repos.Chat.ListByParticipant(ctx, alice.ID)
	if len(chats) != 1 {
		t.Errorf("Expected a single chat, got %d", len(chats))
	}
}

func TestFindOrCreatePrivateRejections(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice := env.user(t, "alice")

	tests := []struct {
		name  string
		other string
		want  error
	}{
		{"self", alice.ID, apperrors.ErrValidation},
		{"empty", "", apperrors.ErrValidation},
		{"unknown user", "ghost", apperrors.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, tt.other); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveParticipantsSkipsStaleIDs(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	chat := &domain.Chat{
		Name:         "stale",
		Type:         domain.ChatTypeGroup,
		Participants: []string{alice.ID, "gone", bob.ID},
	}
	if err := env.repos.Chat.Create(ctx, chat); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	users, err := env.services.Chat.ResolveParticipants(ctx, chat)
	if err != nil {
		t.Fatalf("ResolveParticipants failed: %v", err)
	}
	if len(users) != 2 || users[0].ID != alice.ID || users[1].ID != bob.ID {
		t.Errorf("Unexpected participants: %+v", users)
	}
}

func TestIsParticipant(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	if ok, err := env.services.Chat.IsParticipant(ctx, chat.ID, bob.ID); err != nil || !ok {
		t.Errorf("Expected bob to be a participant: %v %v", ok, err)
	}
	if ok, err := env.services.Chat.IsParticipant(ctx, chat.ID, eve.ID); err != nil || ok {
		t.Errorf("Expected eve not to be a participant: %v %v", ok, err)
	}
	if _, err := env.services.Chat.IsParticipant(ctx, "missing", bob.ID); !errors.Is(err, apperrors.ErrChatNotFound) {
		t.Errorf("Expected ErrChatNotFound, got %v", err)
	}
}

func TestRecordNewMessageOnMissingChat(t *testing.T) {
	env := setupServices(t, nil)
	err := env.services.Chat.RecordNewMessage(context.Background(), "missing", "m1", time.Now())
	if !errors.Is(err, apperrors.ErrChatNotFound) {
		t.Errorf("Expected ErrChatNotFound, got %v", err)
	}
}

func TestListForUserOrdersByLastMessage(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")

	withBob, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	withCarol, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, carol.ID)

	now := time.Now().UTC()
	if err := env.services.Chat.RecordNewMessage(ctx, withBob.ID, "m1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("RecordNewMessage failed: %v", err)
	}
	if err := env.services.Chat.RecordNewMessage(ctx, withCarol.ID, "m2", now); err != nil {
		t.Fatalf("RecordNewMessage failed: %v", err)
	}

	chats, err := env.services.Chat.ListForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != withCarol.ID || chats[1].ID != withBob.ID {
		t.Errorf("Unexpected order: %+v", chats)
	}
}

func TestGroupLifecycle(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")

	if _, err := env.services.Chat.CreateGroup(ctx, alice.ID, "", []string{bob.ID}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected ErrValidation for an unnamed group, got %v", err)
	}

	group, err := env.services.Chat.CreateGroup(ctx, alice.ID, "team", []string{bob.ID, bob.ID, "ghost"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.Type != domain.ChatTypeGroup || len(group.Participants) != 2 || group.Participants[0] != alice.ID {
		t.Fatalf("Unexpected group: %+v", group)
	}

	name := "renamed"
	updated, err := env.services.Chat.UpdateGroup(ctx, group.ID, bob.ID, &name, nil)
	if err != nil || updated.Name != name {
		t.Fatalf("UpdateGroup: %+v %v", updated, err)
	}

	updated, err = env.services.Chat.AddParticipants(ctx, group.ID, alice.ID, []string{carol.ID})
	if err != nil || len(updated.Participants) != 3 {
		t.Fatalf("AddParticipants: %+v %v", updated, err)
	}

	if _, err := env.services.Message.Send(ctx, SendMessageRequest{ChatID: group.ID, SenderID: carol.ID, Text: "hey"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	env.waitDeliveries(t)

	deleted, err := env.services.Chat.RemoveParticipant(ctx, group.ID, carol.ID, carol.ID)
	if err != nil || deleted {
		t.Fatalf("RemoveParticipant: deleted=%v err=%v", deleted, err)
	}
	deleted, err = env.services.Chat.RemoveParticipant(ctx, group.ID, alice.ID, bob.ID)
	if err != nil || !deleted {
		t.Fatalf("Expected the group to be deleted with one member left: deleted=%v err=%v", deleted, err)
	}

	if c, _ := env.repos.Chat.GetByID(ctx, group.ID); c != nil {
		t.Errorf("Expected chat to be gone")
	}
	if msgs, _ := env.repos.Message.ListByChat(ctx, group.ID); len(msgs) != 0 {
		t.Errorf("Expected messages to be removed, got %d", len(msgs))
	}
}

func TestGroupOperationsOnPrivateChat(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	chat, _ := env.services.Chat.FindOrCreatePrivate(ctx, alice.ID, bob.ID)

	if _, err := env.services.Chat.AddParticipants(ctx, chat.ID, alice.ID, []string{carol.ID}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if err := env.services.Chat.DeleteChat(ctx, chat.ID, carol.ID); !errors.Is(err, apperrors.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	if err := env.services.Chat.DeleteChat(ctx, chat.ID, alice.ID); err != nil {
		t.Errorf("DeleteChat failed: %v", err)
	}
}
