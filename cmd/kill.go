package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/synthnode/internal/logging"
	"github.com/smazurov/synthnode/internal/process"
)

// CreateKillCmd creates the kill-stray command.
func CreateKillCmd() *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "kill-stray",
		Short: "Kill leftover engine processes",
		Long:  `Kills every running process named like an engine, such as servers left behind by a crashed client.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("process")

			killed, err := process.KillStray(names, logger)
			if err != nil {
				logger.Error("Failed to list processes", "error", err)
				os.Exit(1)
			}
			fmt.Printf("Killed %d engine process(es)\n", killed)
		},
	}

	cmd.Flags().StringSliceVar(&names, "name", process.EngineNames, "Process names to kill")

	return cmd
}
