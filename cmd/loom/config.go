package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration settings",
	Long: `Manage configuration settings. Values live in config.yaml; environment
variables with the LOOM_ prefix and a project-local .loom/config.yaml
take precedence over the home file.

The daemon reads config at startup: restart it after changing capture
settings.

Examples:
  loom config set retention_days 90
  loom config set workspace_roots "~/code/api,~/code/web"
  loom config get retention_days
  loom config list
  loom config unset retention_days`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		key, value := args[0], args[1]

		if err := config.SetYamlConfig(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "Error setting config: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"key":      key,
				"value":    value,
				"location": config.YamlConfigPath(),
			})
		} else {
			fmt.Printf("Set %s = %s (in %s)\n", key, value, config.YamlConfigPath())
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		value, ok := config.AllSettings()[key]

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"key":   key,
				"value": value,
			})
			return
		}
		if !ok || value == nil {
			fmt.Printf("%s (not set)\n", key)
			return
		}
		fmt.Printf("%v\n", value)
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.AllSettings()

		if jsonOutput {
			outputJSON(settings)
			return
		}

		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("\nConfiguration:")
		for _, k := range keys {
			fmt.Printf("  %s = %v\n", k, settings[k])
		}
		if path := config.ConfigFileUsed(); path != "" {
			fmt.Printf("\nLoaded from %s\n", path)
		} else {
			fmt.Println("\nNo config file found; showing defaults. Run 'loom init' to write one.")
		}
		fmt.Printf("Writable keys: %s\n", strings.Join(config.WritableKeys(), ", "))
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a key from config.yaml",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]

		if err := config.UnsetYamlConfig(key); err != nil {
			fmt.Fprintf(os.Stderr, "Error unsetting config: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"key": key})
		} else {
			fmt.Printf("Unset %s\n", key)
		}
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}
