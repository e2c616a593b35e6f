package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Set up capture sources and write the config file",
	Long: `Set up LoomLog: pick the workspace roots to watch, point at the
editor's sidecar database if one exists, and choose which shell
history files to import. Writes config.yaml and creates the store.

Re-running updates the existing config; current values become the
form defaults.

Examples:
  loom init
  loom init --quiet
  loom init --root ~/code/api --root ~/code/web --quiet`,
	Run: func(cmd *cobra.Command, args []string) {
		quiet, _ := cmd.Flags().GetBool("quiet")
		flagRoots, _ := cmd.Flags().GetStringSlice("root")

		rootsValue := strings.Join(config.WorkspaceRoots(), ", ")
		if len(flagRoots) > 0 {
			rootsValue = strings.Join(flagRoots, ", ")
		}
		if rootsValue == "" {
			if cwd, err := os.Getwd(); err == nil {
				rootsValue = cwd
			}
		}

		editorDBValue := config.EditorDBPath()
		if editorDBValue == "" {
			editorDBValue = detectEditorDB()
		}

		includeHistory := true
		retentionValue := strconv.Itoa(config.GetInt("retention_days"))
		confirmed := true

		if !quiet && ui.IsTerminal() {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewNote().
						Title("LoomLog Setup").
						Description("Configure what gets captured into your local telemetry store.\nEverything stays on this machine."),

					huh.NewInput().
						Title("Workspace roots").
						Description("Comma-separated directories to watch for file changes").
						Placeholder("~/code/api, ~/code/web").
						Value(&rootsValue).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return fmt.Errorf("at least one workspace root is required")
							}
							return nil
						}),

					huh.NewInput().
						Title("Editor database").
						Description("Path to the editor's sidecar SQLite store (optional)").
						Placeholder("~/.config/Cursor/User/globalStorage/state.vscdb").
						Value(&editorDBValue),
				),

				huh.NewGroup(
					huh.NewConfirm().
						Title("Import shell history?").
						Description("Reads ~/.zsh_history and friends into the terminal log").
						Value(&includeHistory),

					huh.NewInput().
						Title("Retention days").
						Description("Rows older than this are aged out (0 disables)").
						Value(&retentionValue).
						Validate(func(s string) error {
							if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
								return fmt.Errorf("expected a number of days")
							}
							return nil
						}),

					huh.NewConfirm().
						Title("Write this config?").
						Affirmative("Write").
						Negative("Cancel").
						Value(&confirmed),
				),
			).WithTheme(huh.ThemeDracula())

			if err := form.Run(); err != nil {
				if err == huh.ErrUserAborted {
					fmt.Fprintln(os.Stderr, "Setup canceled.")
					os.Exit(0)
				}
				FatalError("form error: %v", err)
			}
			if !confirmed {
				fmt.Fprintln(os.Stderr, "Setup canceled.")
				os.Exit(0)
			}
		}

		roots := splitRoots(rootsValue)
		retention, _ := strconv.Atoi(strings.TrimSpace(retentionValue))

		settings := map[string]interface{}{
			"workspace_roots": roots,
			"retention_days":  retention,
		}
		if editorDBValue = strings.TrimSpace(editorDBValue); editorDBValue != "" {
			settings["editor_db_path"] = editorDBValue
		}

		var historyPaths []string
		if includeHistory {
			var entries []map[string]interface{}
			for _, hf := range config.DefaultHistoryFiles() {
				entries = append(entries, map[string]interface{}{"path": hf.Path, "shell": hf.Shell})
				historyPaths = append(historyPaths, hf.Path)
			}
			if len(entries) > 0 {
				settings["history_files"] = entries
			}
		}

		configPath := config.YamlConfigPath()
		if err := config.WriteYamlConfig(configPath, settings); err != nil {
			FatalError("failed to write config: %v", err)
		}
		if err := config.Initialize(); err != nil {
			FatalError("failed to reload config: %v", err)
		}

		// Create the store now so the first daemon start has nothing left
		// to set up.
		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}

		var issues []string
		for _, root := range roots {
			if _, err := os.Stat(expandedPath(root)); err != nil {
				issues = append(issues, fmt.Sprintf("workspace root %s does not exist", root))
			}
		}
		if editorDBValue != "" {
			if _, err := os.Stat(expandedPath(editorDBValue)); err != nil {
				issues = append(issues, fmt.Sprintf("editor database %s does not exist yet", editorDBValue))
			}
		}

		adapters := []string{"filewatcher", "clipboard", "shellhistory", "statustracker"}
		if editorDBValue != "" {
			adapters = append(adapters, "editordb")
		}

		result := ui.InitResult{
			DataDir:      dataDir,
			DBPath:       dbPath,
			ConfigPath:   configPath,
			Workspaces:   roots,
			HistoryFiles: historyPaths,
			Adapters:     adapters,
			DoctorIssues: issues,
			QuickstartCommands: []string{
				"loom daemon start",
				"loom entries",
				"loom doctor",
			},
		}
		if editorDBValue != "" {
			result.EditorDBs = []string{editorDBValue}
		}

		if jsonOutput {
			outputJSON(result)
			return
		}
		fmt.Println(ui.RenderInitReport(result, ui.GetWidth()))
	},
}

// detectEditorDB probes the conventional sidecar store locations and returns
// the first that exists.
func detectEditorDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidates := []string{
		filepath.Join(home, ".config", "Cursor", "User", "globalStorage", "state.vscdb"),
		filepath.Join(home, "Library", "Application Support", "Cursor", "User", "globalStorage", "state.vscdb"),
		filepath.Join(home, ".config", "Code", "User", "globalStorage", "state.vscdb"),
		filepath.Join(home, "Library", "Application Support", "Code", "User", "globalStorage", "state.vscdb"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func splitRoots(raw string) []string {
	var roots []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			roots = append(roots, part)
		}
	}
	return roots
}

func expandedPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func init() {
	initCmd.Flags().BoolP("quiet", "q", false, "Accept defaults without the interactive form")
	initCmd.Flags().StringSlice("root", nil, "Workspace root to watch (repeatable)")
	rootCmd.AddCommand(initCmd)
}
