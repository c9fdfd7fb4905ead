package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gh-projects-migrate/config"
	"gh-projects-migrate/fields"
	"gh-projects-migrate/github"
	"gh-projects-migrate/projects"
	"gh-projects-migrate/repomap"
)

type mockClient struct {
	copyProject     func(sourceOwner string, sourceNumber int, targetOwner, title string) (*github.CopyResult, error)
	projectFields   func(owner string, number int) ([]projects.FieldDef, error)
	addItem         func(targetOwner string, targetNumber int, issueURL string) (string, error)
	updateItemField func(projectID, itemID, fieldID string, upd fields.Update) error
}

func (m *mockClient) CopyProject(_ context.Context, sourceOwner string, sourceNumber int, targetOwner, title string) (*github.CopyResult, error) {
	return m.copyProject(sourceOwner, sourceNumber, targetOwner, title)
}

func (m *mockClient) ProjectFields(_ context.Context, owner string, number int) ([]projects.FieldDef, error) {
	return m.projectFields(owner, number)
}

func (m *mockClient) AddItem(_ context.Context, targetOwner string, targetNumber int, issueURL string) (string, error) {
	return m.addItem(targetOwner, targetNumber, issueURL)
}

func (m *mockClient) UpdateItemField(_ context.Context, projectID, itemID, fieldID string, upd fields.Update) error {
	return m.updateItemField(projectID, itemID, fieldID, upd)
}

const snapshotProjects = `{"projects": [{"number": 5, "title": "Sprint Board", "owner": {"login": "orgA"}}]}`

const snapshotItems = `{"items": [
	{"content": {"url": "https://github.com/orgA/repoA/issues/3", "repository": "orgA/repoA"},
	 "title": "Fix login", "status": "Done", "labels": ["bug"]}
]}`

var targetFieldDefs = []projects.FieldDef{
	{ID: "F_title", Name: "Title", DataType: "TITLE"},
	{ID: "F_status", Name: "Status", DataType: projects.DataTypeSingleSelect,
		Options: []projects.Option{{ID: "O_todo", Name: "Todo"}, {ID: "O_done", Name: "Done"}}},
	{ID: "F_labels", Name: "Labels", DataType: "LABELS"},
}

// newTestMigrator builds a migrator over a one-project snapshot with
// a repoA->repoB mapping.
func newTestMigrator(t *testing.T, client Client, itemsJSON string, adjust func(cfg *config.Config)) (*Migrator, *Store) {
	t.Helper()

	snapDir := t.TempDir()
	if err := os.WriteFile(projects.ProjectListPath(snapDir), []byte(snapshotProjects), 0o644); err != nil {
		t.Fatalf("Failed to write project list: %v", err)
	}
	if err := os.WriteFile(projects.ItemsPath(snapDir, 5), []byte(itemsJSON), 0o644); err != nil {
		t.Fatalf("Failed to write item snapshot: %v", err)
	}

	mappingPath := filepath.Join(snapDir, "mapping.csv")
	if err := os.WriteFile(mappingPath, []byte("repoA,repoB\n"), 0o644); err != nil {
		t.Fatalf("Failed to write mapping: %v", err)
	}
	repos, err := repomap.Load(mappingPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	workDir := t.TempDir()
	store, err := NewStore(workDir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	journal, err := OpenJournal(filepath.Join(workDir, "migration.db"))
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	cfg := &config.Config{
		TargetOrg:   "orgB",
		SnapshotDir: snapDir,
		WorkDir:     workDir,
	}
	if adjust != nil {
		adjust(cfg)
	}
	return NewMigrator(cfg, client, store, journal, repos), store
}

func TestMigratorEndToEnd(t *testing.T) {
	var updates []fields.Update
	var updatedFieldIDs []string

	client := &mockClient{
		copyProject: func(sourceOwner string, sourceNumber int, targetOwner, title string) (*github.CopyResult, error) {
			if sourceOwner != "orgA" || sourceNumber != 5 || targetOwner != "orgB" || title != "Sprint Board" {
				t.Errorf("unexpected copy args: %s %d %s %q", sourceOwner, sourceNumber, targetOwner, title)
			}
			return &github.CopyResult{ID: "PVT_new", Number: 9}, nil
		},
		projectFields: func(owner string, number int) ([]projects.FieldDef, error) {
			if owner != "orgB" || number != 9 {
				t.Errorf("unexpected field-list args: %s %d", owner, number)
			}
			return targetFieldDefs, nil
		},
		addItem: func(targetOwner string, targetNumber int, issueURL string) (string, error) {
			if issueURL != "https://github.com/orgB/repoB/issues/3" {
				t.Errorf("expected remapped url, got %s", issueURL)
			}
			return "ITEM_1", nil
		},
		updateItemField: func(projectID, itemID, fieldID string, upd fields.Update) error {
			if projectID != "PVT_new" || itemID != "ITEM_1" {
				t.Errorf("unexpected update target: %s %s", projectID, itemID)
			}
			updatedFieldIDs = append(updatedFieldIDs, fieldID)
			updates = append(updates, upd)
			return nil
		},
	}

	m, store := newTestMigrator(t, client, snapshotItems, nil)
	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 project result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected project error: %v", res.Err)
	}
	if res.TargetNumber != 9 || res.TargetID != "PVT_new" {
		t.Errorf("unexpected target identifiers: %+v", res)
	}
	if len(res.Items) != 1 || !res.Items[0].Added {
		t.Fatalf("expected one added item, got %+v", res.Items)
	}
	if res.Items[0].Fields["Status"] != FieldApplied {
		t.Errorf("expected Status applied, got %v", res.Items[0].Fields)
	}

	// Title and Labels are ignored; only Status is written, with the
	// target-side option id.
	if len(updates) != 1 {
		t.Fatalf("expected exactly 1 field update, got %d", len(updates))
	}
	if updatedFieldIDs[0] != "F_status" {
		t.Errorf("expected update on F_status, got %s", updatedFieldIDs[0])
	}
	if updates[0].Kind != fields.KindSingleSelect || updates[0].OptionID != "O_done" {
		t.Errorf("unexpected update payload: %+v", updates[0])
	}

	// Both artifacts are persisted for the next run.
	if !store.HasCopyOutput(5) || !store.HasTargetFields(5) {
		t.Error("expected copy and field artifacts after the run")
	}
}

func TestMigratorReusesArtifacts(t *testing.T) {
	copyCalls, fieldCalls, addCalls := 0, 0, 0

	client := &mockClient{
		copyProject: func(string, int, string, string) (*github.CopyResult, error) {
			copyCalls++
			return nil, errors.New("must not be called")
		},
		projectFields: func(string, int) ([]projects.FieldDef, error) {
			fieldCalls++
			return nil, errors.New("must not be called")
		},
		addItem: func(targetOwner string, targetNumber int, issueURL string) (string, error) {
			addCalls++
			if targetNumber != 9 {
				t.Errorf("expected add against project 9, got %d", targetNumber)
			}
			return fmt.Sprintf("ITEM_%d", addCalls), nil
		},
		updateItemField: func(string, string, string, fields.Update) error { return nil },
	}

	m, store := newTestMigrator(t, client, snapshotItems, func(cfg *config.Config) {
		cfg.UseExisting = true
	})
	if err := store.WriteCopyOutput(5, &github.CopyResult{ID: "PVT_new", Number: 9}); err != nil {
		t.Fatalf("WriteCopyOutput() error = %v", err)
	}
	if err := store.WriteTargetFields(5, targetFieldDefs); err != nil {
		t.Fatalf("WriteTargetFields() error = %v", err)
	}

	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if copyCalls != 0 || fieldCalls != 0 {
		t.Errorf("expected no copy/field-list calls, got %d/%d", copyCalls, fieldCalls)
	}
	// Items are not individually checkpointed: every item is re-added.
	if addCalls != 1 {
		t.Errorf("expected 1 add call, got %d", addCalls)
	}
	if results[0].Err != nil {
		t.Errorf("unexpected project error: %v", results[0].Err)
	}
}

func TestMigratorDuplicateArtifactAborts(t *testing.T) {
	remoteCalls := 0
	client := &mockClient{
		copyProject: func(string, int, string, string) (*github.CopyResult, error) {
			remoteCalls++
			return nil, errors.New("must not be called")
		},
		projectFields: func(string, int) ([]projects.FieldDef, error) {
			remoteCalls++
			return nil, errors.New("must not be called")
		},
		addItem: func(string, int, string) (string, error) {
			remoteCalls++
			return "", errors.New("must not be called")
		},
		updateItemField: func(string, string, string, fields.Update) error {
			remoteCalls++
			return errors.New("must not be called")
		},
	}

	m, store := newTestMigrator(t, client, snapshotItems, nil)
	if err := store.WriteCopyOutput(5, &github.CopyResult{ID: "PVT_old", Number: 8}); err != nil {
		t.Fatalf("WriteCopyOutput() error = %v", err)
	}

	_, err := m.Run(context.Background())
	if err == nil {
		t.Fatal("expected duplicate-work error")
	}
	if remoteCalls != 0 {
		t.Errorf("expected abort before any remote call, got %d calls", remoteCalls)
	}
}

func TestMigratorDuplicateArtifactWithFilter(t *testing.T) {
	// A single-project selection skips the run-wide duplicate abort;
	// the stale artifact still fails that project instead of silently
	// re-copying it.
	client := &mockClient{
		copyProject: func(string, int, string, string) (*github.CopyResult, error) {
			t.Error("copy must not be called")
			return nil, errors.New("must not be called")
		},
	}

	m, store := newTestMigrator(t, client, snapshotItems, func(cfg *config.Config) {
		cfg.ProjectNumber = 5
	})
	if err := store.WriteCopyOutput(5, &github.CopyResult{ID: "PVT_old", Number: 8}); err != nil {
		t.Fatalf("WriteCopyOutput() error = %v", err)
	}

	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Errorf("expected a per-project failure, got %+v", results)
	}
}

func TestMigratorProjectFilterNotInSnapshot(t *testing.T) {
	m, _ := newTestMigrator(t, &mockClient{}, snapshotItems, func(cfg *config.Config) {
		cfg.ProjectNumber = 42
	})
	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown project number")
	}
}

func TestMigratorItemAddFailureContinues(t *testing.T) {
	items := `{"items": [
		{"content": {"url": "https://github.com/orgA/repoA/issues/1"}, "status": "Done"},
		{"content": {"url": "https://github.com/orgA/repoA/issues/2"}, "status": "Done"}
	]}`

	updateCalls := 0
	client := &mockClient{
		copyProject: func(string, int, string, string) (*github.CopyResult, error) {
			return &github.CopyResult{ID: "PVT_new", Number: 9}, nil
		},
		projectFields: func(string, int) ([]projects.FieldDef, error) {
			return targetFieldDefs, nil
		},
		addItem: func(_ string, _ int, issueURL string) (string, error) {
			if issueURL == "https://github.com/orgB/repoB/issues/1" {
				return "", errors.New("boom")
			}
			return "ITEM_2", nil
		},
		updateItemField: func(string, string, string, fields.Update) error {
			updateCalls++
			return nil
		},
	}

	m, _ := newTestMigrator(t, client, items, nil)
	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := results[0]
	if res.Err != nil {
		t.Errorf("item failures must not fail the project: %v", res.Err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 item results, got %d", len(res.Items))
	}
	if res.Items[0].Added {
		t.Error("expected first item to be skipped")
	}
	if len(res.Items[0].Fields) != 0 {
		t.Errorf("skipped item must get no field updates, got %v", res.Items[0].Fields)
	}
	if !res.Items[1].Added {
		t.Error("expected second item to be added")
	}
	if updateCalls != 1 {
		t.Errorf("expected 1 field update for the surviving item, got %d", updateCalls)
	}
}

func TestMigratorUnmatchedOptionSkipsField(t *testing.T) {
	items := `{"items": [{"content": {"url": "https://github.com/orgA/repoA/issues/3"}, "status": "InProgress"}]}`

	client := &mockClient{
		copyProject: func(string, int, string, string) (*github.CopyResult, error) {
			return &github.CopyResult{ID: "PVT_new", Number: 9}, nil
		},
		projectFields: func(string, int) ([]projects.FieldDef, error) {
			return targetFieldDefs, nil
		},
		addItem: func(string, int, string) (string, error) { return "ITEM_1", nil },
		updateItemField: func(string, string, string, fields.Update) error {
			t.Error("no update expected for an unmatched option")
			return nil
		},
	}

	m, _ := newTestMigrator(t, client, items, nil)
	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := results[0]
	if res.Items[0].Fields["Status"] != FieldNoMatch {
		t.Errorf("expected no-match outcome, got %v", res.Items[0].Fields)
	}
	if res.Err != nil {
		t.Errorf("a skipped field must not fail the project: %v", res.Err)
	}
}

func TestMigratorCopyFailure(t *testing.T) {
	client := &mockClient{
		copyProject: func(string, int, string, string) (*github.CopyResult, error) {
			return nil, errors.New("copy exploded")
		},
	}

	m, store := newTestMigrator(t, client, snapshotItems, nil)
	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if results[0].Err == nil {
		t.Error("expected a per-project error")
	}
	if store.HasCopyOutput(5) {
		t.Error("a failed copy must not persist an artifact")
	}
}
