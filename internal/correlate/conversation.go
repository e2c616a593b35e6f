package correlate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/untoldecay/LoomLog/internal/types"
)

// conversationTitleLen caps how much prompt text seeds a conversation title.
const conversationTitleLen = 60

// AssignConversation threads a prompt into its conversation and refreshes
// the roll-up counters. A prompt that already carries a conversation id
// keeps it; otherwise the composer id wins, then the parent conversation,
// then a fresh id. The conversation row is created on first contact and
// titled from the first prompt seen.
func (e *Engine) AssignConversation(ctx context.Context, prompt *types.Prompt) (string, error) {
	if prompt == nil || prompt.ID == 0 {
		return "", fmt.Errorf("prompt must be saved before conversation assignment")
	}

	convID := prompt.ConversationID
	assigned := false
	if convID == "" {
		assigned = true
		switch {
		case prompt.ComposerID != "":
			convID = prompt.ComposerID
		case prompt.ParentConversationID != "":
			convID = prompt.ParentConversationID
		default:
			convID = uuid.New().String()
		}
	}

	conv, err := e.store.GetConversation(ctx, convID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		conv = &types.Conversation{
			ID:            convID,
			WorkspaceID:   prompt.WorkspaceID,
			WorkspacePath: prompt.WorkspacePath,
			Title:         TitleFor(prompt.Text),
			Status:        types.ConversationActive,
			CreatedAt:     e.now().UTC(),
		}
		if err := e.store.SaveConversation(ctx, conv); err != nil {
			return "", fmt.Errorf("failed to create conversation: %w", err)
		}
	} else if conv.Title == "" && prompt.Text != "" {
		conv.Title = TitleFor(prompt.Text)
		if err := e.store.SaveConversation(ctx, conv); err != nil {
			return "", fmt.Errorf("failed to title conversation: %w", err)
		}
	}

	if assigned {
		if err := e.store.SetPromptConversation(ctx, prompt.ID, convID, prompt.ConversationIndex, conv.Title); err != nil {
			return "", fmt.Errorf("failed to assign conversation: %w", err)
		}
		prompt.ConversationID = convID
	}

	if err := e.store.RefreshConversationRollup(ctx, convID); err != nil {
		return "", fmt.Errorf("failed to refresh conversation rollup: %w", err)
	}
	return convID, nil
}

// TitleFor derives a conversation title from prompt text: the first line,
// truncated with an ellipsis when long.
func TitleFor(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > conversationTitleLen {
		title = strings.TrimSpace(string(runes[:conversationTitleLen])) + "..."
	}
	return title
}
