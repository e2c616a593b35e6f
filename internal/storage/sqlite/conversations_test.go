package sqlite

import (
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

func TestSaveConversationPreservesCreatedAt(t *testing.T) {
	env := newTestEnv(t)

	conv := &types.Conversation{
		ID:        "conv-1",
		Title:     "retry work",
		CreatedAt: testBase,
	}
	if err := env.Store.SaveConversation(env.Ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// A later sync re-saves the conversation with fresher metadata.
	update := &types.Conversation{
		ID:        "conv-1",
		Title:     "retry work, renamed",
		Status:    types.ConversationArchived,
		UpdatedAt: testBase.Add(time.Hour),
	}
	if err := env.Store.SaveConversation(env.Ctx, update); err != nil {
		t.Fatalf("SaveConversation (update) failed: %v", err)
	}

	got, err := env.Store.GetConversation(env.Ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected conversation, got nil")
	}
	if got.Title != "retry work, renamed" || got.Status != types.ConversationArchived {
		t.Errorf("Expected updated metadata, got %q / %q", got.Title, got.Status)
	}
	if !got.CreatedAt.Equal(testBase) {
		t.Errorf("Expected created_at preserved at %v, got %v", testBase, got.CreatedAt)
	}
}

func TestSaveConversationDefaults(t *testing.T) {
	env := newTestEnv(t)

	if err := env.Store.SaveConversation(env.Ctx, &types.Conversation{ID: "conv-1"}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	got, err := env.Store.GetConversation(env.Ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Status != types.ConversationActive {
		t.Errorf("Expected default status active, got %q", got.Status)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("Expected timestamps filled, got %v / %v", got.CreatedAt, got.UpdatedAt)
	}

	if err := env.Store.SaveConversation(env.Ctx, &types.Conversation{}); err == nil {
		t.Error("Expected error for missing id, got nil")
	}
}

func TestGetConversationAbsent(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.Store.GetConversation(env.Ctx, "no-such-conversation")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for absent conversation, got %+v", got)
	}
}

func TestRefreshConversationRollup(t *testing.T) {
	env := newTestEnv(t)

	if err := env.Store.SaveConversation(env.Ctx, &types.Conversation{ID: "conv-1", CreatedAt: testBase}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	latest := testBase.Add(10 * time.Minute)
	first := env.CreatePrompt("one", testBase)
	second := env.CreatePrompt("two", testBase.Add(5*time.Minute))
	third := env.CreatePrompt("three", latest)
	for _, p := range []*types.Prompt{first, second, third} {
		if err := env.Store.SetPromptConversation(env.Ctx, p.ID, "conv-1", nil, ""); err != nil {
			t.Fatalf("SetPromptConversation failed: %v", err)
		}
	}

	if err := env.Store.RefreshConversationRollup(env.Ctx, "conv-1"); err != nil {
		t.Fatalf("RefreshConversationRollup failed: %v", err)
	}

	got, err := env.Store.GetConversation(env.Ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.MessageCount != 3 {
		t.Errorf("Expected message_count 3, got %d", got.MessageCount)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(latest) {
		t.Errorf("Expected last_message_at %v, got %v", latest, got.LastMessageAt)
	}

	// A metadata re-save must not reset the derived counters.
	if err := env.Store.SaveConversation(env.Ctx, &types.Conversation{ID: "conv-1", Title: "renamed"}); err != nil {
		t.Fatalf("SaveConversation (resave) failed: %v", err)
	}
	got, err = env.Store.GetConversation(env.Ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.MessageCount != 3 || got.LastMessageAt == nil {
		t.Errorf("Expected rollup preserved across re-save, got count=%d last=%v", got.MessageCount, got.LastMessageAt)
	}
}

func TestConversationsByWorkspaceOrdering(t *testing.T) {
	env := newTestEnv(t)

	// Two active conversations plus one that never received a message.
	busy := &types.Conversation{ID: "conv-busy", WorkspaceID: "ws-1", CreatedAt: testBase}
	older := &types.Conversation{ID: "conv-older", WorkspaceID: "ws-1", CreatedAt: testBase.Add(time.Minute)}
	idle := &types.Conversation{ID: "conv-idle", WorkspaceID: "ws-1", CreatedAt: testBase.Add(2 * time.Minute)}
	elsewhere := &types.Conversation{ID: "conv-other", WorkspaceID: "ws-2", CreatedAt: testBase}
	for _, c := range []*types.Conversation{busy, older, idle, elsewhere} {
		if err := env.Store.SaveConversation(env.Ctx, c); err != nil {
			t.Fatalf("SaveConversation failed: %v", err)
		}
	}

	recent := env.CreatePrompt("recent", testBase.Add(time.Hour))
	stale := env.CreatePrompt("stale", testBase.Add(30*time.Minute))
	if err := env.Store.SetPromptConversation(env.Ctx, recent.ID, "conv-busy", nil, ""); err != nil {
		t.Fatalf("SetPromptConversation failed: %v", err)
	}
	if err := env.Store.SetPromptConversation(env.Ctx, stale.ID, "conv-older", nil, ""); err != nil {
		t.Fatalf("SetPromptConversation failed: %v", err)
	}
	for _, id := range []string{"conv-busy", "conv-older"} {
		if err := env.Store.RefreshConversationRollup(env.Ctx, id); err != nil {
			t.Fatalf("RefreshConversationRollup failed: %v", err)
		}
	}

	conversations, err := env.Store.ConversationsByWorkspace(env.Ctx, "ws-1", 10)
	if err != nil {
		t.Fatalf("ConversationsByWorkspace failed: %v", err)
	}
	if len(conversations) != 3 {
		t.Fatalf("Expected 3 conversations for ws-1, got %d", len(conversations))
	}
	if conversations[0].ID != "conv-busy" || conversations[1].ID != "conv-older" {
		t.Errorf("Expected most recently active first, got %s, %s", conversations[0].ID, conversations[1].ID)
	}
	if conversations[2].ID != "conv-idle" {
		t.Errorf("Expected idle conversation last, got %s", conversations[2].ID)
	}
}
