package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/pipeline"
	"github.com/taskloop/taskloop/internal/statefile"
	"github.com/taskloop/taskloop/internal/util"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stageStyle     = lipgloss.NewStyle().Width(22)
	approvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	attentionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	summaryStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pipeline stage table and the next action",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		plan := pipeline.NewStagePlan(app.layout)
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-22s %-22s %s", "STAGE", "STATUS", "ITERATION")))
		for _, stage := range plan.Stages() {
			fmt.Fprintln(out, renderStageRow(app.layout, stage))
		}

		det, err := app.orch.Detect()
		if err != nil {
			fmt.Fprintln(out, summaryStyle.Render("Next: "+failedStyle.Render("state unreadable: "+err.Error())))
			return nil
		}
		fmt.Fprintln(out, summaryStyle.Render("Next: "+renderNextAction(det)))
		return nil
	},
}

// renderStageRow formats one line of the stage table.
func renderStageRow(layout artifact.Layout, stage pipeline.Stage) string {
	name := stageStyle.Render(stage.Name)

	if !artifact.Exists(stage.Artifact) {
		return name + " " + pendingStyle.Render("pending")
	}

	doc, err := artifact.ValidateOutput(stage.Artifact, stage.Kind)
	if err != nil {
		return name + " " + failedStyle.Render(util.TruncateString("invalid: "+err.Error(), 60))
	}

	status := doc.Status()
	if stage.Kind == artifact.KindPlan {
		status = "present"
	}

	row := name + " " + renderStatus(stage, status)
	if stage.IsReview() {
		row += " " + pendingStyle.Render(fmt.Sprintf("%d", stageIteration(layout, stage.Name)))
	}
	return row
}

func renderStatus(stage pipeline.Stage, status string) string {
	padded := fmt.Sprintf("%-22s", status)
	switch {
	case status == "present",
		stage.Kind == artifact.KindReview && artifact.ReviewStatus(status).IsApproving(),
		stage.Kind == artifact.KindImplementation && artifact.ImplStatus(status).IsApproving():
		return approvedStyle.Render(padded)
	case status == string(artifact.ReviewRejected), status == string(artifact.ImplFailed):
		return failedStyle.Render(padded)
	default:
		return attentionStyle.Render(padded)
	}
}

// renderNextAction describes the detection outcome for humans.
func renderNextAction(det pipeline.Detection) string {
	switch det.Type {
	case pipeline.ActionComplete:
		return approvedStyle.Render("pipeline complete")
	case pipeline.ActionEscalate:
		return failedStyle.Render(fmt.Sprintf("escalated at %s (%s)", det.Stage.Name, det.Reason))
	case pipeline.ActionClarify:
		var sb strings.Builder
		sb.WriteString(attentionStyle.Render(fmt.Sprintf("waiting on clarification for %s", det.Stage.Name)))
		for _, q := range det.Questions {
			sb.WriteString("\n  - " + util.TruncateANSI(q, 100))
		}
		return sb.String()
	case pipeline.ActionFix:
		return attentionStyle.Render(fmt.Sprintf("fix round %d at %s", det.Iteration+1, det.Stage.Name))
	default:
		return fmt.Sprintf("invoke %s for %s", det.Stage.Agent, det.Stage.Name)
	}
}

// stageIteration reads a review stage's fix-loop counter for display.
func stageIteration(layout artifact.Layout, stageName string) int {
	value, err := statefile.GetDefault(layout.State(), "iterations."+stageName, float64(0))
	if err != nil {
		return 0
	}
	if f, ok := value.(float64); ok {
		return int(f)
	}
	return 0
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
