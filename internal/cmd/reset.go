package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all pipeline artifacts and start over",
	Long: `Reset removes every artifact under .task/, including review session
markers and the state document. This is the only operation that resets
iteration counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		if !resetForce && !confirmReset(cmd) {
			fmt.Fprintln(cmd.OutOrStdout(), "reset aborted")
			return nil
		}

		var removed int
		for _, path := range app.layout.All() {
			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
			removed++
		}

		app.log.Info("pipeline reset", "removed", removed)
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d artifacts\n", removed)
		return nil
	},
}

// confirmReset prompts on stdin unless --force was given.
func confirmReset(cmd *cobra.Command) bool {
	fmt.Fprint(cmd.OutOrStdout(), "Delete all pipeline artifacts? [y/N] ")
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}
