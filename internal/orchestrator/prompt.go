package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/pipeline"
)

// FrontMatter is optional YAML metadata at the top of an agent instruction
// file, delimited by "---" lines. It overrides the configured model and
// timeout for invocations using that file.
type FrontMatter struct {
	Model          string `yaml:"model"`
	TimeoutMinutes int    `yaml:"timeout_minutes"`
}

// Timeout returns the override as a duration, or zero when unset.
func (f FrontMatter) Timeout() time.Duration {
	return time.Duration(f.TimeoutMinutes) * time.Minute
}

var frontMatterDelim = []byte("---\n")

// splitFrontMatter separates the YAML front matter block from the
// instruction body. Content without a leading "---" line is returned
// unchanged with a zero FrontMatter.
func splitFrontMatter(content []byte) (FrontMatter, string, error) {
	var fm FrontMatter

	if !bytes.HasPrefix(content, frontMatterDelim) {
		return fm, string(content), nil
	}

	rest := content[len(frontMatterDelim):]
	end := bytes.Index(rest, frontMatterDelim)
	if end < 0 {
		return fm, "", fmt.Errorf("unterminated front matter block")
	}

	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return fm, "", fmt.Errorf("invalid front matter: %w", err)
	}
	return fm, string(rest[end+len(frontMatterDelim):]), nil
}

// Prompt is the assembled instruction text for one invocation, with any
// per-file overrides.
type Prompt struct {
	Text    string
	Model   string
	Timeout time.Duration
}

// PromptBuilder assembles agent prompts from instruction files and the
// artifact context a stage needs.
type PromptBuilder struct {
	root   string
	layout artifact.Layout
	cfg    *config.Config
}

// NewPromptBuilder creates a PromptBuilder rooted at the project directory.
func NewPromptBuilder(root string, layout artifact.Layout, cfg *config.Config) *PromptBuilder {
	return &PromptBuilder{root: root, layout: layout, cfg: cfg}
}

// BuildInvoke assembles the prompt for running a stage's primary agent.
// Clarification answers, when present on disk, are appended so a reviewer
// re-invoked after a clarification round sees them.
func (b *PromptBuilder) BuildInvoke(stage pipeline.Stage) (Prompt, error) {
	prompt, err := b.base(stage)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	sb.WriteString(prompt.Text)
	b.writeContext(&sb, stage)
	b.writeAnswers(&sb)
	b.writeOutputContract(&sb, stage)

	prompt.Text = sb.String()
	return prompt, nil
}

// BuildFix assembles the prompt for the upstream fixer: the agent that
// produced the artifact this review found wanting. The review feedback is
// embedded verbatim as JSON.
func (b *PromptBuilder) BuildFix(fixStage pipeline.Stage, review artifact.Document, deepRework bool) (Prompt, error) {
	prompt, err := b.base(fixStage)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	sb.WriteString(prompt.Text)
	b.writeContext(&sb, fixStage)

	sb.WriteString("\n\n## Review feedback\n\n")
	if deepRework {
		sb.WriteString("The review REJECTED the previous result. Rework it from the ground up rather than patching it.\n\n")
	} else {
		sb.WriteString("The review requested changes. Address every point below.\n\n")
	}
	if summary := review.Summary(); summary != "" {
		sb.WriteString(summary + "\n\n")
	}
	if feedback, err := json.MarshalIndent(review, "", "  "); err == nil {
		sb.WriteString("```json\n" + string(feedback) + "\n```\n")
	}

	b.writeOutputContract(&sb, fixStage)

	prompt.Text = sb.String()
	return prompt, nil
}

// base loads the agent's instruction file and applies its front matter,
// falling back to a built-in prompt when no file is configured.
func (b *PromptBuilder) base(stage pipeline.Stage) (Prompt, error) {
	agentCfg, ok := b.cfg.Agent(stage.Agent.String())
	if !ok {
		return Prompt{}, fmt.Errorf("no configuration for agent %q", stage.Agent)
	}

	if agentCfg.InstructionsFile == "" {
		return Prompt{Text: builtinInstructions(stage)}, nil
	}

	path := agentCfg.InstructionsFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.root, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Prompt{Text: builtinInstructions(stage)}, nil
		}
		return Prompt{}, fmt.Errorf("failed to read instructions: %w", err)
	}

	fm, body, err := splitFrontMatter(content)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", path, err)
	}

	return Prompt{
		Text:    body,
		Model:   fm.Model,
		Timeout: fm.Timeout(),
	}, nil
}

// writeContext appends the upstream artifacts the stage consumes.
func (b *PromptBuilder) writeContext(sb *strings.Builder, stage pipeline.Stage) {
	var inputs []string
	switch stage.Name {
	case pipeline.StagePlanning:
		inputs = []string{b.layout.UserStory()}
	case pipeline.StagePlanReviewSonnet, pipeline.StagePlanReviewOpus, pipeline.StagePlanReviewCodex:
		inputs = []string{b.layout.UserStory(), b.layout.PlanRefined()}
	case pipeline.StageImplementation:
		inputs = []string{b.layout.UserStory(), b.layout.PlanRefined()}
	case pipeline.StageCodeReviewSonnet, pipeline.StageCodeReviewOpus, pipeline.StageCodeReviewCodex:
		inputs = []string{b.layout.PlanRefined(), b.layout.ImplResult()}
	}
	if len(inputs) == 0 {
		return
	}

	sb.WriteString("\n\n## Input artifacts\n\n")
	for _, path := range inputs {
		fmt.Fprintf(sb, "- %s\n", path)
	}
}

// writeAnswers appends externally supplied clarification answers if a
// previous round asked for them.
func (b *PromptBuilder) writeAnswers(sb *strings.Builder) {
	path := b.layout.ClarificationAnswers()
	content, err := os.ReadFile(path)
	if err != nil || len(bytes.TrimSpace(content)) == 0 {
		return
	}
	sb.WriteString("\n\n## Clarification answers\n\n```json\n")
	sb.Write(bytes.TrimSpace(content))
	sb.WriteString("\n```\n")
}

// writeOutputContract appends the line every agent must obey: one JSON
// document at the stage's artifact path, with the fields the validator
// will demand.
func (b *PromptBuilder) writeOutputContract(sb *strings.Builder, stage pipeline.Stage) {
	fmt.Fprintf(sb, "\n\n## Output\n\nWrite your result as a single JSON object to %s.\n", stage.Artifact)
	switch stage.Kind {
	case artifact.KindReview:
		sb.WriteString(`Required fields: "status" (one of "approved", "needs_changes", "needs_clarification", "rejected") and "summary" (string).` + "\n")
	case artifact.KindImplementation:
		sb.WriteString(`Required fields: "status" (one of "complete", "partial", "failed"), "files_modified", "files_created", "steps_completed", "steps_remaining".` + "\n")
	}
}

// builtinInstructions returns the fallback prompt for stages without a
// configured instruction file.
func builtinInstructions(stage pipeline.Stage) string {
	switch stage.Name {
	case pipeline.StageRequirements:
		return "Gather the feature requirements for this repository into a user story with acceptance criteria."
	case pipeline.StagePlanning:
		return "Produce a refined implementation plan for the user story, broken into ordered steps."
	case pipeline.StageImplementation:
		return "Implement the refined plan in this repository, step by step."
	default:
		if stage.Kind == artifact.KindReview {
			return "Review the input artifacts for correctness, completeness, and feasibility. Be specific about every problem you find."
		}
		return "Complete the stage task for this repository."
	}
}
