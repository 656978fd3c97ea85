package chat_test

import (
	"context"
	"testing"

	model "github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chat "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
)

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "openai")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.BackendID != "openai" {
		t.Fatalf("unexpected backend ID: got %s", got.BackendID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestServiceCreateSessionRequiresBackend(t *testing.T) {
	svc := chat.NewService()
	if _, err := svc.CreateSession(context.Background(), ""); err != chat.ErrBackendRequired {
		t.Fatalf("expected ErrBackendRequired, got %v", err)
	}
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, "openai")
	b, _ := svc.CreateSession(ctx, "openai")

	storeA, err := svc.Store(ctx, a.ID)
	if err != nil {
		t.Fatalf("Store err: %v", err)
	}
	storeA.Append(model.UserMessage("only in a"))

	transcriptB, err := svc.LoadTranscript(ctx, b.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcriptB) != 0 {
		t.Fatalf("session b leaked %d messages", len(transcriptB))
	}
}

func TestServiceDeleteSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "ark")
	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if _, err := svc.GetSession(ctx, session.ID); err != chat.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := svc.DeleteSession(ctx, session.ID); err != chat.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}
