package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gh-projects-migrate/github"
	"gh-projects-migrate/projects"
)

// Store keeps the per-project artifacts that mark completed migration
// steps: one copy-output record and one target-field record, keyed by
// the source project number. Their presence is the only signal a
// re-run uses to skip work; deleting a project's files forces a redo.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the import directory under
// workDir.
func NewStore(workDir string) (*Store, error) {
	dir := filepath.Join(workDir, "import")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create import directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// CopyOutputPath returns the artifact path for a project's copy
// result.
func (s *Store) CopyOutputPath(sourceNumber int) string {
	return filepath.Join(s.dir, fmt.Sprintf("copy-output-%d.json", sourceNumber))
}

// TargetFieldsPath returns the artifact path for a project's target
// field list.
func (s *Store) TargetFieldsPath(sourceNumber int) string {
	return filepath.Join(s.dir, fmt.Sprintf("target-fields-%d.json", sourceNumber))
}

func (s *Store) HasCopyOutput(sourceNumber int) bool {
	_, err := os.Stat(s.CopyOutputPath(sourceNumber))
	return err == nil
}

func (s *Store) HasTargetFields(sourceNumber int) bool {
	_, err := os.Stat(s.TargetFieldsPath(sourceNumber))
	return err == nil
}

func (s *Store) WriteCopyOutput(sourceNumber int, res *github.CopyResult) error {
	return writeJSON(s.CopyOutputPath(sourceNumber), res)
}

func (s *Store) ReadCopyOutput(sourceNumber int) (*github.CopyResult, error) {
	var res github.CopyResult
	if err := readJSON(s.CopyOutputPath(sourceNumber), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) WriteTargetFields(sourceNumber int, defs []projects.FieldDef) error {
	return writeJSON(s.TargetFieldsPath(sourceNumber), defs)
}

func (s *Store) ReadTargetFields(sourceNumber int) ([]projects.FieldDef, error) {
	var defs []projects.FieldDef
	if err := readJSON(s.TargetFieldsPath(sourceNumber), &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// writeJSON persists v via a temp file and rename, so a crash cannot
// leave a truncated artifact that later reads as a completed step.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
