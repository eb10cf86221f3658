package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/synthnode/internal/logging"
)

// CreateCommandCmd creates the command command.
func CreateCommandCmd() *cobra.Command {
	var optionsFile string

	cmd := &cobra.Command{
		Use:   "command",
		Short: "Print the engine command line",
		Long:  `Prints the command line a subprocess engine would be started with, for the given engine options file.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("command")

			opts, err := LoadEngineOptions(optionsFile)
			if err != nil {
				logger.Error("Failed to load engine options", "error", err, "path", optionsFile)
				os.Exit(1)
			}
			tokens, err := opts.Command()
			if err != nil {
				logger.Error("Failed to resolve engine executable", "error", err)
				os.Exit(1)
			}
			fmt.Println(shellJoin(tokens))
		},
	}

	cmd.Flags().StringVar(&optionsFile, "options", "engine.toml", "Path to engine options file")

	return cmd
}

// shellJoin joins tokens into a line a POSIX shell splits back into the same
// tokens.
func shellJoin(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		if tok != "" && !strings.ContainsAny(tok, " \t\n'\"\\$`*?[]#~;&|<>(){}!") {
			quoted[i] = tok
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(tok, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
