package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// The *FromRecord mappers turn loose key/value records into canonical
// entities. Imports and the editor reader produce these maps; every key is
// accepted in both snake_case and camelCase because the editor's sidecar
// store speaks the latter. A record missing its identifying field is
// malformed and rejected; optional fields that fail coercion are left zero.

// pick returns the first present, non-nil value among keys.
func pick(rec map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := rec[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func pickString(rec map[string]any, keys ...string) string {
	v, ok := pick(rec, keys...)
	if !ok {
		return ""
	}
	s, _ := String(v)
	return s
}

func pickInt64(rec map[string]any, keys ...string) int64 {
	v, ok := pick(rec, keys...)
	if !ok {
		return 0
	}
	n, _ := Int64(v)
	return n
}

func pickInt(rec map[string]any, keys ...string) int {
	return int(pickInt64(rec, keys...))
}

func pickFloat(rec map[string]any, keys ...string) float64 {
	v, ok := pick(rec, keys...)
	if !ok {
		return 0
	}
	f, _ := Float(v)
	return f
}

func pickBool(rec map[string]any, keys ...string) bool {
	v, ok := pick(rec, keys...)
	if !ok {
		return false
	}
	b, _ := Bool(v)
	return b
}

func pickTime(rec map[string]any, keys ...string) time.Time {
	v, ok := pick(rec, keys...)
	if !ok {
		return time.Time{}
	}
	ts, _ := Time(v)
	return ts
}

func pickStrings(rec map[string]any, keys ...string) []string {
	v, ok := pick(rec, keys...)
	if !ok {
		return nil
	}
	out, _ := StringSlice(v)
	return out
}

// idRef turns a positive id into a pointer, leaving absent or zero ids nil.
func idRef(rec map[string]any, keys ...string) *int64 {
	if id := pickInt64(rec, keys...); id > 0 {
		return &id
	}
	return nil
}

// EntryFromRecord maps one loose record onto an Entry.
func EntryFromRecord(rec map[string]any) (*types.Entry, error) {
	entry := &types.Entry{
		ID:             pickInt64(rec, "id"),
		SessionID:      pickString(rec, "session_id", "sessionId"),
		WorkspacePath:  pickString(rec, "workspace_path", "workspacePath", "workspace"),
		FilePath:       pickString(rec, "file_path", "filePath", "file"),
		Source:         types.Source(pickString(rec, "source")),
		BeforeCode:     pickString(rec, "before_code", "beforeCode"),
		AfterCode:      pickString(rec, "after_code", "afterCode"),
		Notes:          pickString(rec, "notes"),
		Timestamp:      pickTime(rec, "timestamp", "created_at", "createdAt"),
		Tags:           pickStrings(rec, "tags"),
		PromptID:       idRef(rec, "prompt_id", "promptId"),
		Type:           pickString(rec, "type", "entry_type", "entryType"),
		LinkConfidence: types.Confidence(pickString(rec, "link_confidence", "linkConfidence")),
	}
	if entry.FilePath == "" {
		return nil, fmt.Errorf("entry record requires a file path")
	}
	if v, ok := pick(rec, "model"); ok {
		if m, mok := Map(v); mok {
			info := &types.ModelInfo{
				Type: pickString(m, "type", "model_type", "modelType"),
				Name: pickString(m, "name", "model_name", "modelName"),
			}
			if info.Type != "" || info.Name != "" {
				entry.Model = info
			}
		} else if s, sok := String(v); sok && s != "" {
			entry.Model = &types.ModelInfo{Name: s}
		}
	}
	if entry.Model == nil {
		info := &types.ModelInfo{
			Type: pickString(rec, "model_type", "modelType"),
			Name: pickString(rec, "model_name", "modelName"),
		}
		if info.Type != "" || info.Name != "" {
			entry.Model = info
		}
	}
	return entry, nil
}

// PromptFromRecord maps one loose record onto a Prompt. The editor's
// conversation rows carry stats and context files either flat or nested;
// both shapes land on the same struct.
func PromptFromRecord(rec map[string]any) (*types.Prompt, error) {
	prompt := &types.Prompt{
		ID:                   pickInt64(rec, "id"),
		Timestamp:            pickTime(rec, "timestamp", "created_at", "createdAt"),
		Text:                 pickString(rec, "text", "prompt"),
		Status:               types.PromptStatus(pickString(rec, "status")),
		LinkedEntryID:        idRef(rec, "linked_entry_id", "linkedEntryId"),
		Source:               types.Source(pickString(rec, "source")),
		WorkspaceID:          pickString(rec, "workspace_id", "workspaceId"),
		WorkspacePath:        pickString(rec, "workspace_path", "workspacePath"),
		WorkspaceName:        pickString(rec, "workspace_name", "workspaceName"),
		ComposerID:           pickString(rec, "composer_id", "composerId"),
		Confidence:           types.Confidence(pickString(rec, "confidence")),
		ThinkingTimeMS:       pickInt64(rec, "thinking_time_ms", "thinkingTimeMs", "thinking_time", "thinkingTime"),
		AttachmentCount:      pickInt(rec, "attachment_count", "attachmentCount"),
		ConversationID:       pickString(rec, "conversation_id", "conversationId"),
		ConversationTitle:    pickString(rec, "conversation_title", "conversationTitle"),
		MessageRole:          pickString(rec, "message_role", "messageRole", "role"),
		ParentConversationID: pickString(rec, "parent_conversation_id", "parentConversationId"),
		AddedFromDatabase:    pickBool(rec, "added_from_database", "addedFromDatabase"),
	}
	if prompt.Text == "" && prompt.ComposerID == "" {
		return nil, fmt.Errorf("prompt record requires text or a composer id")
	}
	if v, ok := pick(rec, "conversation_index", "conversationIndex", "message_index", "messageIndex"); ok {
		if idx, iok := Int(v); iok {
			prompt.ConversationIndex = &idx
		}
	}
	if v, ok := pick(rec, "stats"); ok {
		if m, mok := Map(v); mok {
			prompt.Stats = statsFromMap(m)
		}
	} else {
		prompt.Stats = statsFromMap(rec)
	}
	if v, ok := pick(rec, "context_files", "contextFiles"); ok {
		if files, fok := StringSlice(v); fok {
			prompt.ContextFiles = files
		} else if m, mok := Map(v); mok {
			if files, fok := StringSlice(m["files"]); fok {
				prompt.ContextFiles = files
			}
			prompt.ContextFileCounts = countsFromMap(m)
		}
	}
	if v, ok := pick(rec, "context_file_counts", "contextFileCounts"); ok {
		if m, mok := Map(v); mok {
			prompt.ContextFileCounts = countsFromMap(m)
		}
	}
	reconcileCounts(&prompt.ContextFileCounts, len(prompt.ContextFiles))
	if v, ok := pick(rec, "terminal_blocks", "terminalBlocks"); ok {
		prompt.TerminalBlocks = blocksFrom(v)
	}
	return prompt, nil
}

func statsFromMap(m map[string]any) types.PromptStats {
	return types.PromptStats{
		LinesAdded:   pickInt(m, "lines_added", "linesAdded"),
		LinesRemoved: pickInt(m, "lines_removed", "linesRemoved"),
		ContextUsage: clampRatio(pickFloat(m, "context_usage", "contextUsage")),
		Mode:         pickString(m, "mode"),
		ModelType:    pickString(m, "model_type", "modelType"),
		ModelName:    pickString(m, "model_name", "modelName"),
		ForceMode:    pickBool(m, "force_mode", "forceMode"),
		Auto:         pickBool(m, "auto"),
	}
}

func countsFromMap(m map[string]any) types.ContextFileCounts {
	counts := types.ContextFileCounts{
		Count:    pickInt(m, "count", "total"),
		Explicit: pickInt(m, "explicit"),
		Tabs:     pickInt(m, "tabs"),
		Auto:     pickInt(m, "auto"),
	}
	if v, ok := pick(m, "count_by_source", "countBySource"); ok {
		if by, bok := Map(v); bok {
			counts.Explicit = pickInt(by, "explicit")
			counts.Tabs = pickInt(by, "tabs")
			counts.Auto = pickInt(by, "auto")
		}
	}
	return counts
}

// reconcileCounts enforces Count == Explicit + Tabs + Auto. A total with no
// per-source breakdown lands in the auto bucket, the catch-all for files the
// editor attached on its own.
func reconcileCounts(c *types.ContextFileCounts, fileCount int) {
	if c.Count == 0 {
		c.Count = fileCount
	}
	sum := c.Explicit + c.Tabs + c.Auto
	if sum == 0 {
		c.Auto = c.Count
		return
	}
	if c.Count != sum {
		c.Count = sum
	}
}

func blocksFrom(v any) []types.TerminalBlock {
	items, ok := v.([]any)
	if !ok {
		if s, sok := String(v); sok && strings.TrimSpace(s) != "" {
			var out []types.TerminalBlock
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		return nil
	}
	out := make([]types.TerminalBlock, 0, len(items))
	for _, item := range items {
		m, mok := Map(item)
		if !mok {
			continue
		}
		block := types.TerminalBlock{
			Command: pickString(m, "command", "cmd"),
			Output:  pickString(m, "output", "result"),
		}
		if block.Command != "" || block.Output != "" {
			out = append(out, block)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TerminalCommandFromRecord maps one loose record onto a TerminalCommand.
func TerminalCommandFromRecord(rec map[string]any) (*types.TerminalCommand, error) {
	cmd := &types.TerminalCommand{
		ID:            pickString(rec, "id"),
		Command:       pickString(rec, "command", "cmd"),
		Shell:         pickString(rec, "shell"),
		Source:        types.Source(pickString(rec, "source")),
		Timestamp:     pickTime(rec, "timestamp", "executed_at", "executedAt"),
		WorkspacePath: pickString(rec, "workspace_path", "workspacePath"),
		Output:        pickString(rec, "output"),
		DurationMS:    pickInt64(rec, "duration_ms", "durationMs", "duration"),
		Error:         pickString(rec, "error", "error_message", "errorMessage"),
		EntryID:       idRef(rec, "entry_id", "entryId"),
		PromptID:      idRef(rec, "prompt_id", "promptId"),
		SessionID:     pickString(rec, "session_id", "sessionId"),
	}
	if cmd.Command == "" {
		return nil, fmt.Errorf("terminal command record requires command text")
	}
	if v, ok := pick(rec, "exit_code", "exitCode"); ok {
		if code, cok := Int(v); cok {
			cmd.ExitCode = &code
		}
	}
	return cmd, nil
}

// TodoFromRecord maps one loose record onto a Todo.
func TodoFromRecord(rec map[string]any) (*types.Todo, error) {
	todo := &types.Todo{
		ID:            pickString(rec, "id"),
		Content:       pickString(rec, "content", "text"),
		Status:        types.TodoStatus(pickString(rec, "status")),
		OrderIndex:    pickInt(rec, "order_index", "orderIndex", "index"),
		SessionID:     pickString(rec, "session_id", "sessionId"),
		CreatedAt:     pickTime(rec, "created_at", "createdAt", "timestamp"),
		UpdatedAt:     pickTime(rec, "updated_at", "updatedAt"),
		FilesModified: pickStrings(rec, "files_modified", "filesModified"),
	}
	if todo.Content == "" {
		return nil, fmt.Errorf("todo record requires content")
	}
	if ts := pickTime(rec, "started_at", "startedAt"); !ts.IsZero() {
		todo.StartedAt = &ts
	}
	if ts := pickTime(rec, "completed_at", "completedAt"); !ts.IsZero() {
		todo.CompletedAt = &ts
	}
	if v, ok := pick(rec, "prompt_ids", "promptIds"); ok {
		if ids, iok := Int64Slice(v); iok {
			todo.PromptIDs = ids
		}
	}
	return todo, nil
}

// StatusMessageFromRecord maps one loose record onto a StatusMessage.
func StatusMessageFromRecord(rec map[string]any) (*types.StatusMessage, error) {
	msg := &types.StatusMessage{
		ID:        pickString(rec, "id"),
		SessionID: pickString(rec, "session_id", "sessionId"),
		Timestamp: pickTime(rec, "timestamp"),
		Text:      pickString(rec, "text", "message"),
		Action:    types.StatusAction(pickString(rec, "action")),
	}
	if msg.Text == "" {
		return nil, fmt.Errorf("status message record requires text")
	}
	return msg, nil
}

// EventFromRecord maps one loose record onto an Event.
func EventFromRecord(rec map[string]any) (*types.Event, error) {
	event := &types.Event{
		ID:            pickString(rec, "id"),
		SessionID:     pickString(rec, "session_id", "sessionId"),
		WorkspacePath: pickString(rec, "workspace_path", "workspacePath"),
		Timestamp:     pickTime(rec, "timestamp"),
		Type:          pickString(rec, "type", "event_type", "eventType"),
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event record requires a type")
	}
	if v, ok := pick(rec, "details"); ok {
		if m, mok := Map(v); mok {
			event.Details = m
		}
	}
	return event, nil
}
