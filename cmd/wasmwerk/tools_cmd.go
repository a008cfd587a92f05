package main

import (
	"fmt"

	"github.com/codefionn/wasmwerk/internal/registry"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		tools, err := a.store.List()
		if err != nil {
			return err
		}
		if len(tools) == 0 {
			fmt.Println("no tools registered")
			return nil
		}
		for _, t := range tools {
			state := "enabled"
			if !t.Enabled {
				state = "disabled"
			}
			kind := "user"
			if t.Builtin {
				kind = "builtin"
			}
			fmt.Printf("%-24s %-10s %-8s %-8s %s\n", t.Name, t.Version, kind, state, t.Description)
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install <package.zip>",
	Short: "Install a tool package",
	Long: `Install validates a tool package (a ZIP with one manifest.json and one
.wasm binary) and registers it. Validation is atomic: a bad package never
partially installs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		t, err := a.reg.InstallFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("installed %s@%s (%s)\n", t.Name, t.Version, t.ID)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <tool>",
	Short: "Remove a user-installed tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.store.Remove(args[0])
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <tool>",
	Short: "Enable a tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.store.SetEnabled(args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <tool>",
	Short: "Disable a tool without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.store.SetEnabled(args[0], false)
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Fetch and register the curated built-in tools",
	Long: `Bootstrap reads the built-in tool list, fetches any missing binaries and
re-syncs the stored manifests against the current definitions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		specs, err := registry.LoadBuiltinSpecs(a.cfg.BuiltinList)
		if err != nil {
			return err
		}
		return a.reg.Bootstrap(cmd.Context(), specs, nil)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the tool directory and install dropped packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		w, err := registry.WatchDir(a.reg, a.cfg.ToolDir)
		if err != nil {
			return err
		}
		defer w.Close()
		fmt.Printf("watching %s; press Ctrl-C to stop\n", a.cfg.ToolDir)
		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, installCmd, removeCmd, enableCmd, disableCmd, bootstrapCmd, watchCmd)
}
