package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// Each generator writes a completion script for the whole command tree.
	shells = map[string]func(w io.Writer) error{
		"bash":       func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		"zsh":        func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		"fish":       func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		"powershell": func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
	}

	completionCmd = &cobra.Command{
		Use:       "completion " + strings.Join(shellNames(), "|"),
		Short:     "Generate a shell completion script",
		Example:   "source <(ktable completion bash)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE:      completionRun,
		// Completion needs no config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
)

func init() {
	rootCmd.AddCommand(completionCmd)
}

func shellNames() []string {
	names := make([]string, 0, len(shells))
	for name := range shells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func completionRun(cmd *cobra.Command, args []string) error {
	generate, ok := shells[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q, want one of %s", args[0], strings.Join(shellNames(), ", "))
	}
	return generate(cmd.OutOrStdout())
}
