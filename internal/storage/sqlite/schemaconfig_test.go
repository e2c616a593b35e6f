package sqlite

import (
	"testing"

	"github.com/untoldecay/LoomLog/internal/types"
)

func TestSchemaConfigGlobalRowsDeduplicate(t *testing.T) {
	env := newTestEnv(t)

	// The unique index treats NULL workspaces as distinct, so two saves of
	// the global row would pile up without the pre-delete.
	first := &types.SchemaFieldConfig{
		TableName:   "entries",
		FieldName:   "notes",
		DisplayName: "Notes",
		Enabled:     true,
	}
	if err := env.Store.SaveSchemaFieldConfig(env.Ctx, first); err != nil {
		t.Fatalf("SaveSchemaFieldConfig failed: %v", err)
	}
	second := &types.SchemaFieldConfig{
		TableName:   "entries",
		FieldName:   "notes",
		DisplayName: "Developer notes",
		Enabled:     false,
	}
	if err := env.Store.SaveSchemaFieldConfig(env.Ctx, second); err != nil {
		t.Fatalf("SaveSchemaFieldConfig (resave) failed: %v", err)
	}

	configs, err := env.Store.GetSchemaFieldConfigs(env.Ctx, "entries", nil)
	if err != nil {
		t.Fatalf("GetSchemaFieldConfigs failed: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("Expected 1 config row, got %d", len(configs))
	}
	if configs[0].DisplayName != "Developer notes" || configs[0].Enabled {
		t.Errorf("Expected latest save to win, got %+v", configs[0])
	}
}

func TestSchemaConfigWorkspaceOverridesGlobal(t *testing.T) {
	env := newTestEnv(t)

	ws := "ws-1"
	global := &types.SchemaFieldConfig{
		TableName:   "entries",
		FieldName:   "tags",
		DisplayName: "Tags",
		Enabled:     true,
	}
	override := &types.SchemaFieldConfig{
		TableName:   "entries",
		FieldName:   "tags",
		WorkspaceID: &ws,
		DisplayName: "Labels",
		Enabled:     false,
	}
	globalOnly := &types.SchemaFieldConfig{
		TableName:   "entries",
		FieldName:   "notes",
		DisplayName: "Notes",
		Enabled:     true,
	}
	for _, cfg := range []*types.SchemaFieldConfig{global, override, globalOnly} {
		if err := env.Store.SaveSchemaFieldConfig(env.Ctx, cfg); err != nil {
			t.Fatalf("SaveSchemaFieldConfig failed: %v", err)
		}
	}

	configs, err := env.Store.GetSchemaFieldConfigs(env.Ctx, "entries", &ws)
	if err != nil {
		t.Fatalf("GetSchemaFieldConfigs failed: %v", err)
	}
	byField := make(map[string]*types.SchemaFieldConfig)
	for _, cfg := range configs {
		byField[cfg.FieldName] = cfg
	}
	if len(configs) != 2 {
		t.Fatalf("Expected 2 effective configs, got %d", len(configs))
	}
	if byField["tags"].DisplayName != "Labels" {
		t.Errorf("Expected workspace override for tags, got %q", byField["tags"].DisplayName)
	}
	if byField["notes"].DisplayName != "Notes" {
		t.Errorf("Expected global fallback for notes, got %q", byField["notes"].DisplayName)
	}

	// Without a workspace only the global rows apply.
	globals, err := env.Store.GetSchemaFieldConfigs(env.Ctx, "entries", nil)
	if err != nil {
		t.Fatalf("GetSchemaFieldConfigs (global) failed: %v", err)
	}
	for _, cfg := range globals {
		if cfg.WorkspaceID != nil {
			t.Errorf("Expected only global rows, got workspace %v", *cfg.WorkspaceID)
		}
	}
}

func TestDeleteSchemaFieldConfig(t *testing.T) {
	env := newTestEnv(t)

	cfg := &types.SchemaFieldConfig{TableName: "entries", FieldName: "notes", Enabled: true}
	if err := env.Store.SaveSchemaFieldConfig(env.Ctx, cfg); err != nil {
		t.Fatalf("SaveSchemaFieldConfig failed: %v", err)
	}
	if err := env.Store.DeleteSchemaFieldConfig(env.Ctx, "entries", "notes", nil); err != nil {
		t.Fatalf("DeleteSchemaFieldConfig failed: %v", err)
	}

	configs, err := env.Store.GetSchemaFieldConfigs(env.Ctx, "entries", nil)
	if err != nil {
		t.Fatalf("GetSchemaFieldConfigs failed: %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("Expected no configs after delete, got %d", len(configs))
	}

	// Deleting a missing row is not an error.
	if err := env.Store.DeleteSchemaFieldConfig(env.Ctx, "entries", "notes", nil); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
}
