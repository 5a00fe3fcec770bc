package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/artifact"
	errs "github.com/taskloop/taskloop/internal/errors"
	"github.com/taskloop/taskloop/internal/orchestrator"
	"github.com/taskloop/taskloop/internal/pipeline"
	"github.com/taskloop/taskloop/internal/session"
)

var (
	invokeOutput     string
	invokeKind       string
	invokeModel      string
	invokeTimeout    int
	invokeAllow      []string
	invokeSession    string
	invokePromptFile string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <agent>",
	Short: "Invoke a single agent outside the orchestration loop",
	Long: `Invoke runs one agent (planner, coder, reviewer, or codex) with
instructions read from stdin or --prompt-file, then validates the JSON
document the agent wrote to --output against the --kind contract.

Lifecycle events are emitted as NDJSON on stdout. The exit code reports
the outcome: 0 success, 1 output missing or invalid, 2 agent not
installed or authentication required, 3 timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent := pipeline.AgentKind(args[0])
		kind := artifact.Kind(invokeKind)

		switch agent {
		case pipeline.AgentPlanner, pipeline.AgentCoder, pipeline.AgentReviewer, pipeline.AgentCodexReviewer:
		default:
			return fmt.Errorf("unknown agent %q (want planner, coder, reviewer, or codex)", args[0])
		}
		switch kind {
		case artifact.KindPlan, artifact.KindReview, artifact.KindImplementation:
		default:
			return fmt.Errorf("unknown kind %q (want plan, review, or implementation)", invokeKind)
		}

		var sessionKind session.ReviewKind
		if invokeSession != "" {
			sessionKind = session.ReviewKind(invokeSession)
			if !sessionKind.IsValid() {
				return fmt.Errorf("unknown session %q (want plan or code)", invokeSession)
			}
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		promptText, err := readPrompt(cmd.InOrStdin())
		if err != nil {
			return err
		}

		if len(invokeAllow) > 0 {
			grantCapabilities(app, agent, invokeAllow)
		}

		output := invokeOutput
		if !filepath.IsAbs(output) {
			output = filepath.Join(app.root, output)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app.emitter.Start("", "invoke")
		app.emitter.Invoking("", agent.String(), invokeModel)

		doc, err := app.runner.Invoke(ctx, orchestrator.InvokeRequest{
			Agent: agent,
			Model: invokeModel,
			Prompt: orchestrator.Prompt{
				Text:    promptText,
				Timeout: time.Duration(invokeTimeout) * time.Second,
			},
			OutputPath: output,
			OutputKind: kind,
			Session:    sessionKind,
		})
		if err != nil {
			app.emitter.Error("", errs.PhaseOf(err), err)
			return err
		}

		app.emitter.Complete("", doc.Status(), 0)
		return nil
	},
}

// readPrompt loads the instruction text from --prompt-file or stdin.
func readPrompt(stdin io.Reader) (string, error) {
	if invokePromptFile != "" {
		data, err := os.ReadFile(invokePromptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	return string(data), nil
}

// grantCapabilities appends one-off capability grants to the agent's
// configuration for this invocation.
func grantCapabilities(a *app, agent pipeline.AgentKind, caps []string) {
	switch agent {
	case pipeline.AgentPlanner:
		a.cfg.Agents.Planner.Capabilities = append(a.cfg.Agents.Planner.Capabilities, caps...)
	case pipeline.AgentCoder:
		a.cfg.Agents.Coder.Capabilities = append(a.cfg.Agents.Coder.Capabilities, caps...)
	case pipeline.AgentReviewer:
		a.cfg.Agents.Reviewer.Capabilities = append(a.cfg.Agents.Reviewer.Capabilities, caps...)
	case pipeline.AgentCodexReviewer:
		a.cfg.Agents.Codex.Capabilities = append(a.cfg.Agents.Codex.Capabilities, caps...)
	}
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeOutput, "output", "o", "", "artifact path the agent must write")
	_ = invokeCmd.MarkFlagRequired("output")
	invokeCmd.Flags().StringVar(&invokeKind, "kind", "plan", "output contract: plan, review, or implementation")
	invokeCmd.Flags().StringVarP(&invokeModel, "model", "m", "", "model name passed via the agent's model flag")
	invokeCmd.Flags().IntVarP(&invokeTimeout, "timeout", "t", 0, "invocation timeout in seconds (0 = configured default)")
	invokeCmd.Flags().StringArrayVar(&invokeAllow, "allow", nil, "capability grant, repeatable")
	invokeCmd.Flags().StringVar(&invokeSession, "session", "", "resumable session scope: plan or code")
	invokeCmd.Flags().StringVar(&invokePromptFile, "prompt-file", "", "read instructions from a file instead of stdin")
	rootCmd.AddCommand(invokeCmd)
}
