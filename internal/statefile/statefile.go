// Package statefile is the persistence primitive for the pipeline: JSON
// documents on disk, addressed by dot-separated field paths, replaced
// atomically so a reader never observes a partially written document.
//
// All mutation goes through Set, which loads the document (or starts from
// an empty one), applies every mutation as a single whole-document
// transformation, and writes the result to a temporary sibling file before
// renaming it over the target.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Distinct failure kinds so callers can decide retry vs. abort vs. default.
var (
	// ErrNotFound indicates the document file does not exist.
	ErrNotFound = errors.New("state file not found")
	// ErrFieldNotFound indicates a field path did not resolve and no
	// default was supplied.
	ErrFieldNotFound = errors.New("field not found")
	// ErrUnreadable indicates the file exists but could not be read.
	ErrUnreadable = errors.New("state file unreadable")
	// ErrMalformed indicates the file content is not valid JSON.
	ErrMalformed = errors.New("state file malformed")
)

// Document is a parsed JSON object.
type Document = map[string]any

// Load reads and parses the JSON document at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return doc, nil
}

// Save writes doc to path atomically with two-space indentation.
func Save(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return WriteAtomic(path, append(data, '\n'), 0644)
}

// Get loads the document at path and resolves fieldPath (dot-separated,
// e.g. "iterations.plan_review_sonnet") by descending through nested
// objects. Fails with ErrFieldNotFound (or ErrNotFound for a missing file)
// when the path does not resolve; use GetDefault to supply a fallback.
func Get(path, fieldPath string) (any, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}

	value, ok := resolve(doc, fieldPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldPath)
	}
	return value, nil
}

// GetDefault behaves like Get but returns def when the file does not exist
// or any segment of fieldPath is missing. Unreadable or malformed files
// still fail so corruption is never silently papered over.
func GetDefault(path, fieldPath string, def any) (any, error) {
	doc, err := Load(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return def, nil
		}
		return nil, err
	}

	value, ok := resolve(doc, fieldPath)
	if !ok {
		return def, nil
	}
	return value, nil
}

// resolve descends doc through the dot-separated field path.
func resolve(doc Document, fieldPath string) (any, bool) {
	segments := strings.Split(fieldPath, ".")
	var current any = doc
	for _, seg := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Mutation is one field-level change applied by Set.
type Mutation struct {
	fieldPath string
	apply     func(doc Document) error
}

// SetString assigns a literal string value at fieldPath.
func SetString(fieldPath, value string) Mutation {
	return SetValue(fieldPath, value)
}

// SetValue assigns a typed literal (number, bool, null, nested object)
// at fieldPath.
func SetValue(fieldPath string, value any) Mutation {
	return Mutation{fieldPath: fieldPath, apply: func(doc Document) error {
		parent, key, err := descend(doc, fieldPath, true)
		if err != nil {
			return err
		}
		parent[key] = value
		return nil
	}}
}

// SetNow assigns the current UTC timestamp (RFC 3339) at fieldPath.
func SetNow(fieldPath string) Mutation {
	return SetValue(fieldPath, time.Now().UTC().Format(time.RFC3339))
}

// Increment increases the numeric value at fieldPath by one, treating a
// missing field as zero.
func Increment(fieldPath string) Mutation {
	return Mutation{fieldPath: fieldPath, apply: func(doc Document) error {
		parent, key, err := descend(doc, fieldPath, true)
		if err != nil {
			return err
		}
		switch v := parent[key].(type) {
		case nil:
			parent[key] = float64(1)
		case float64:
			parent[key] = v + 1
		case int:
			parent[key] = float64(v) + 1
		default:
			return fmt.Errorf("cannot increment non-numeric field %q (%T)", fieldPath, v)
		}
		return nil
	}}
}

// Delete removes the field at fieldPath. Deleting a missing field is a no-op.
func Delete(fieldPath string) Mutation {
	return Mutation{fieldPath: fieldPath, apply: func(doc Document) error {
		parent, key, err := descend(doc, fieldPath, false)
		if err != nil || parent == nil {
			return err
		}
		delete(parent, key)
		return nil
	}}
}

// descend walks to the parent object of the final path segment, creating
// intermediate objects when create is true. With create false, a missing
// intermediate returns (nil, "", nil) so the caller can treat it as absent.
func descend(doc Document, fieldPath string, create bool) (map[string]any, string, error) {
	segments := strings.Split(fieldPath, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg]
		if !ok {
			if !create {
				return nil, "", nil
			}
			child := make(map[string]any)
			current[seg] = child
			current = child
			continue
		}
		obj, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("field %q is not an object in path %q", seg, fieldPath)
		}
		current = obj
	}
	return current, segments[len(segments)-1], nil
}

// Set applies the mutations to the document at path as one whole-document
// transformation, then atomically replaces the file. A missing document
// starts from an empty object; an unreadable or malformed one is an error.
func Set(path string, mutations ...Mutation) error {
	doc, err := Load(path)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		doc = make(Document)
	}

	for _, m := range mutations {
		if err := m.apply(doc); err != nil {
			return err
		}
	}

	return Save(path, doc)
}

// Merge deep-merges the documents at the given paths into one, later
// documents' keys overriding earlier ones. Missing files are skipped so an
// optional local override can layer over a base document. At least one
// document must exist.
func Merge(paths ...string) (Document, error) {
	merged := make(Document)
	found := false

	for _, p := range paths {
		doc, err := Load(p)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		found = true
		deepMerge(merged, doc)
	}

	if !found {
		return nil, fmt.Errorf("%w: no documents among %s", ErrNotFound, strings.Join(paths, ", "))
	}
	return merged, nil
}

// deepMerge merges src into dst, recursing into nested objects and
// overwriting everything else.
func deepMerge(dst, src Document) {
	for k, v := range src {
		if srcObj, ok := v.(map[string]any); ok {
			if dstObj, ok := dst[k].(map[string]any); ok {
				deepMerge(dstObj, srcObj)
				continue
			}
		}
		dst[k] = v
	}
}

// Validate reports whether the file at path exists, is readable, and
// parses as syntactically valid JSON. No schema checking is performed.
func Validate(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var raw json.RawMessage
	return json.Unmarshal(data, &raw) == nil
}

// WriteAtomic writes data to path by writing a temporary sibling file,
// syncing it, and renaming it over the target. The target file is never
// observed in a partially-written state.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
