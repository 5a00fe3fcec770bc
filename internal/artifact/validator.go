package artifact

import (
	"bytes"
	"encoding/json"
	"os"

	errs "github.com/taskloop/taskloop/internal/errors"
)

// Document is a parsed artifact. Kind-specific payload beyond the validated
// fields (clarification_questions, findings, files_modified, ...) is passed
// through opaquely; the orchestrator never interprets it.
type Document map[string]any

// Status returns the document's status field, or "" if absent.
func (d Document) Status() string {
	s, _ := d["status"].(string)
	return s
}

// Summary returns the document's summary field, or "" if absent.
func (d Document) Summary() string {
	s, _ := d["summary"].(string)
	return s
}

// ClarificationQuestions returns the embedded question list from a review
// document that asked for clarification. Non-string entries are skipped.
func (d Document) ClarificationQuestions() []string {
	raw, ok := d["clarification_questions"].([]any)
	if !ok {
		return nil
	}
	questions := make([]string, 0, len(raw))
	for _, q := range raw {
		if s, ok := q.(string); ok {
			questions = append(questions, s)
		}
	}
	return questions
}

// ValidateOutput is the single gate between "external agent ran" and
// "orchestrator trusts the result". It checks, in order: the file exists,
// is readable and non-empty, parses as JSON, carries a status in the
// allowed set for the expected kind, and (for review documents) carries a
// string summary. A document missing its summary fails even when status is
// "approved", so a malformed-but-approving result can never silently
// advance the pipeline.
//
// Validation is read-only and idempotent: validating the same unchanged
// file twice yields the same outcome.
func ValidateOutput(path string, kind Kind) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrapf(errs.ErrOutputMissing, "%s", path)
		}
		return nil, errs.Wrapf(errs.ErrOutputEmpty, "%s: %v", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errs.Wrapf(errs.ErrOutputEmpty, "%s", path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrapf(errs.ErrOutputNotJSON, "%s: %v", path, err)
	}

	allowed := allowedStatuses(kind)
	if allowed == nil {
		// Plan-kind documents carry no status contract.
		return doc, nil
	}

	rawStatus, ok := doc["status"]
	if !ok {
		return nil, errs.NewMissingFieldError("status")
	}
	status, ok := rawStatus.(string)
	if !ok || !contains(allowed, status) {
		return nil, errs.NewInvalidStatusError(stringify(rawStatus), string(kind))
	}

	if kind == KindReview {
		if summary, ok := doc["summary"].(string); !ok || summary == "" {
			return nil, errs.NewMissingFieldError("summary")
		}
	}

	return doc, nil
}

// Exists reports whether an artifact file is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(data)
}
