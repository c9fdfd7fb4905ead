package projects

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot directory layout written by the export step: a project
// list plus per-project item and field files keyed by the source
// project number.
func ProjectListPath(dir string) string {
	return filepath.Join(dir, "projects.json")
}

func ItemsPath(dir string, number int) string {
	return filepath.Join(dir, fmt.Sprintf("items-%d.json", number))
}

func FieldsPath(dir string, number int) string {
	return filepath.Join(dir, fmt.Sprintf("fields-%d.json", number))
}

// LoadProjects reads a project list snapshot. The export tool wraps
// the list in a {"projects": [...]} object; a bare array is accepted
// too.
func LoadProjects(path string) ([]Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project list: %w", err)
	}
	var wrapper struct {
		Projects []Project `json:"projects"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Projects != nil {
		return wrapper.Projects, nil
	}
	var list []Project
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse project list %s: %w", path, err)
	}
	return list, nil
}

// LoadItems reads a project's item snapshot, wrapped
// ({"items": [...]}) or bare.
func LoadItems(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item snapshot: %w", err)
	}
	var wrapper struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Items != nil {
		return wrapper.Items, nil
	}
	var list []Item
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse item snapshot %s: %w", path, err)
	}
	return list, nil
}

// LoadFields reads a field-list snapshot, wrapped ({"fields": [...]})
// or bare.
func LoadFields(path string) ([]FieldDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field list: %w", err)
	}
	var wrapper struct {
		Fields []FieldDef `json:"fields"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Fields != nil {
		return wrapper.Fields, nil
	}
	var list []FieldDef
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse field list %s: %w", path, err)
	}
	return list, nil
}
