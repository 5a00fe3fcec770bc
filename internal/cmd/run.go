package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/filelock"
	"github.com/taskloop/taskloop/internal/orchestrator"
	"github.com/taskloop/taskloop/internal/pipeline"
)

var (
	runOnce     bool
	runWatch    bool
	runMaxTicks int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop until it settles",
	Long: `Run detects the current pipeline phase from the artifacts under
.task/ and invokes agents until the pipeline completes, escalates, or
waits on clarification answers.

With --once, exactly one tick is performed. With --watch, a pipeline
waiting on clarification answers blocks until clarification-answers.json
appears, then resumes automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		// One orchestrator per task directory; concurrent runs would race
		// on iteration counters and session markers.
		lock, err := filelock.Acquire(app.layout.Dir())
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()

		app.orch.SetMaxTicks(runMaxTicks)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runOnce {
			_, err := app.orch.Tick(ctx)
			return err
		}

		for {
			det, err := app.orch.Run(ctx)
			if err != nil {
				return err
			}
			if det.Type != pipeline.ActionClarify || !runWatch {
				return nil
			}
			app.log.Info("waiting for clarification answers",
				"stage", det.Stage.Name,
				"questions", len(det.Questions),
			)
			if err := orchestrator.WaitForAnswers(ctx, app.layout); err != nil {
				return err
			}
		}
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "perform exactly one orchestration tick")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "block on clarification answers and resume")
	runCmd.Flags().IntVar(&runMaxTicks, "max-ticks", 0, "bound on orchestration ticks per run (0 = default)")
	runCmd.MarkFlagsMutuallyExclusive("once", "watch")
	rootCmd.AddCommand(runCmd)
}
