package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runArgsJSON string

var runCmd = &cobra.Command{
	Use:   "run <tool>",
	Short: "Execute a registered tool",
	Long: `Run executes a registered tool inside the WASI sandbox.

Arguments are passed as a JSON object and converted to argv/stdin per the
tool's declared calling convention. The tool's stdout is printed to stdout,
its stderr to stderr, and its exit code becomes the process exit code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		toolArgs := map[string]any{}
		if runArgsJSON != "" {
			if err := json.Unmarshal([]byte(runArgsJSON), &toolArgs); err != nil {
				return fmt.Errorf("invalid --args JSON: %w", err)
			}
		}

		res, err := a.mgr.ExecuteTool(cmd.Context(), args[0], toolArgs)
		if err != nil {
			return err
		}

		if res.Stdout != "" {
			fmt.Print(res.Stdout)
		}
		if res.Truncated {
			fmt.Printf("\n[output truncated: %d bytes, %d lines; result id %s]\n",
				res.TotalBytes, res.TotalLines, res.ResultID)
		}
		if res.Stderr != "" {
			fmt.Fprint(os.Stderr, res.Stderr)
		}
		if !res.Success && res.Error != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", res.Error)
		}
		if res.ExitCode != 0 {
			os.Exit(res.ExitCode)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runArgsJSON, "args", "", "Tool arguments as a JSON object")
	rootCmd.AddCommand(runCmd)
}
