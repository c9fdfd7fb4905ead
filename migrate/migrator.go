package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gh-projects-migrate/config"
	"gh-projects-migrate/fields"
	"gh-projects-migrate/github"
	"gh-projects-migrate/projects"
	"gh-projects-migrate/repomap"
)

// Client defines the interface for the remote service operations the
// migrator drives.
type Client interface {
	CopyProject(ctx context.Context, sourceOwner string, sourceNumber int, targetOwner, title string) (*github.CopyResult, error)
	ProjectFields(ctx context.Context, owner string, number int) ([]projects.FieldDef, error)
	AddItem(ctx context.Context, targetOwner string, targetNumber int, issueURL string) (string, error)
	UpdateItemField(ctx context.Context, projectID, itemID, fieldID string, upd fields.Update) error
}

// Migrator replays a source organization's project snapshots into the
// target organization, one project, one item, one field at a time.
type Migrator struct {
	cfg     *config.Config
	client  Client
	store   *Store
	journal *Journal
	repos   *repomap.Map
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(cfg *config.Config, client Client, store *Store, journal *Journal, repos *repomap.Map) *Migrator {
	return &Migrator{
		cfg:     cfg,
		client:  client,
		store:   store,
		journal: journal,
		repos:   repos,
	}
}

// ProjectResult aggregates what happened to one project.
type ProjectResult struct {
	SourceNumber int
	TargetNumber int
	TargetID     string
	Items        []ItemResult
	Err          error
}

// ItemResult records one item's fate: whether it was added and, per
// migratable field, what happened to its value.
type ItemResult struct {
	URL    string
	ItemID string
	Added  bool
	Fields map[string]string
}

// Run migrates every selected project in snapshot order. Individual
// project, item and field failures are logged and accumulated in the
// results; only precondition failures return an error, and those are
// raised before any remote mutation.
func (m *Migrator) Run(ctx context.Context) ([]ProjectResult, error) {
	all, err := projects.LoadProjects(projects.ProjectListPath(m.cfg.SnapshotDir))
	if err != nil {
		return nil, err
	}

	selected := all
	if m.cfg.ProjectNumber != 0 {
		selected = nil
		for _, p := range all {
			if p.Number == m.cfg.ProjectNumber {
				selected = append(selected, p)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("project %d is not in the snapshot", m.cfg.ProjectNumber)
		}
	}

	// A leftover copy artifact means a previous run already migrated
	// these projects. Without --use-existing (and without an explicit
	// single-project selection) that is almost certainly accidental
	// double migration, so stop before touching the remote.
	if !m.cfg.UseExisting && m.cfg.ProjectNumber == 0 {
		for _, p := range selected {
			if m.store.HasCopyOutput(p.Number) {
				return nil, fmt.Errorf("copy output for project %d already exists at %s; pass --use-existing to resume, or remove the artifacts to migrate again",
					p.Number, m.store.CopyOutputPath(p.Number))
			}
		}
	}

	results := make([]ProjectResult, 0, len(selected))
	failed := 0
	for _, p := range selected {
		res := m.migrateProject(ctx, p)
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}
	log.Printf("Migration finished: %d project(s) processed, %d failed.", len(results), failed)
	return results, nil
}

func (m *Migrator) migrateProject(ctx context.Context, p projects.Project) ProjectResult {
	res := ProjectResult{SourceNumber: p.Number}
	log.Printf("Migrating project %d (%s) from %s to %s...", p.Number, p.Title, p.Owner.Login, m.cfg.TargetOrg)

	runID, err := m.journal.StartProject(p.Number)
	if err != nil {
		log.Printf("Error opening journal run for project %d: %v", p.Number, err)
	}

	copyRes, err := m.copyOutput(ctx, p)
	if err != nil {
		log.Printf("Error copying project %d: %v", p.Number, err)
		res.Err = err
		return res
	}
	res.TargetNumber = copyRes.Number
	res.TargetID = copyRes.ID

	defs, err := m.targetFields(ctx, p.Number, copyRes.Number)
	if err != nil {
		log.Printf("Error fetching target fields for project %d: %v", p.Number, err)
		res.Err = err
		return res
	}
	included := fields.Included(defs)

	items, err := projects.LoadItems(projects.ItemsPath(m.cfg.SnapshotDir, p.Number))
	if err != nil {
		log.Printf("Error loading item snapshot for project %d: %v", p.Number, err)
		res.Err = err
		return res
	}

	added := 0
	for _, item := range items {
		ir := m.migrateItem(ctx, runID, copyRes, included, item)
		if ir.Added {
			added++
		}
		res.Items = append(res.Items, ir)
	}

	if err := m.journal.FinishProject(runID, copyRes.Number, copyRes.ID); err != nil {
		log.Printf("Error closing journal run for project %d: %v", p.Number, err)
	}
	log.Printf("Project %d done: %d/%d items added to %s project %d.",
		p.Number, added, len(items), m.cfg.TargetOrg, copyRes.Number)
	return res
}

// copyOutput returns the target project's identifiers, either by
// reusing a persisted copy artifact or by invoking the copy and
// persisting its result.
func (m *Migrator) copyOutput(ctx context.Context, p projects.Project) (*github.CopyResult, error) {
	if m.store.HasCopyOutput(p.Number) {
		if !m.cfg.UseExisting {
			return nil, fmt.Errorf("copy output already exists at %s (pass --use-existing to reuse it)",
				m.store.CopyOutputPath(p.Number))
		}
		log.Printf("Project %d: reusing existing copy output.", p.Number)
		return m.store.ReadCopyOutput(p.Number)
	}

	copyRes, err := m.client.CopyProject(ctx, p.Owner.Login, p.Number, m.cfg.TargetOrg, p.Title)
	if err != nil {
		return nil, fmt.Errorf("copy project: %w", err)
	}
	if err := m.store.WriteCopyOutput(p.Number, copyRes); err != nil {
		return nil, fmt.Errorf("persist copy output: %w", err)
	}
	return copyRes, nil
}

// targetFields returns the new project's field schema, from the
// persisted artifact when present, otherwise from the service.
func (m *Migrator) targetFields(ctx context.Context, sourceNumber, targetNumber int) ([]projects.FieldDef, error) {
	if m.store.HasTargetFields(sourceNumber) {
		log.Printf("Project %d: reusing existing target field list.", sourceNumber)
		return m.store.ReadTargetFields(sourceNumber)
	}

	defs, err := m.client.ProjectFields(ctx, m.cfg.TargetOrg, targetNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch target fields: %w", err)
	}
	if err := m.store.WriteTargetFields(sourceNumber, defs); err != nil {
		return nil, fmt.Errorf("persist target fields: %w", err)
	}
	return defs, nil
}

func (m *Migrator) migrateItem(ctx context.Context, runID int64, copyRes *github.CopyResult, included []projects.FieldDef, item projects.Item) ItemResult {
	res := ItemResult{URL: item.ContentURL, Fields: make(map[string]string)}

	targetURL, err := repomap.RewriteURL(item.ContentURL, m.cfg.TargetOrg, m.repos)
	if err != nil {
		log.Printf("Error remapping item %s: %v", item.ContentURL, err)
		m.recordItem(runID, item.ContentURL, "", false, err)
		return res
	}
	res.URL = targetURL

	itemID, err := m.client.AddItem(ctx, m.cfg.TargetOrg, copyRes.Number, targetURL)
	if err != nil {
		log.Printf("Error adding item %s to project %d: %v", targetURL, copyRes.Number, err)
		m.recordItem(runID, targetURL, "", false, err)
		return res
	}
	res.ItemID = itemID
	res.Added = true
	outcomeID := m.recordItem(runID, targetURL, itemID, true, nil)

	for _, def := range included {
		raw, ok := item.Attributes[projects.AttributeKey(def.Name)]
		if !ok || projects.EmptyValue(raw) {
			continue
		}
		res.Fields[def.Name] = m.applyField(ctx, copyRes.ID, itemID, outcomeID, targetURL, def, raw)
	}
	return res
}

// applyField resolves and writes one field value, returning the
// outcome label that was journaled.
func (m *Migrator) applyField(ctx context.Context, projectID, itemID string, outcomeID int64, itemURL string, def projects.FieldDef, raw json.RawMessage) string {
	upd, err := fields.Resolve(def, raw)
	if err != nil {
		outcome := FieldError
		if errors.Is(err, fields.ErrNoMatch) {
			outcome = FieldNoMatch
		}
		log.Printf("Skipping field %q on item %s: %v", def.Name, itemURL, err)
		m.recordField(outcomeID, def.Name, outcome, err)
		return outcome
	}

	if err := m.client.UpdateItemField(ctx, projectID, itemID, def.ID, upd); err != nil {
		log.Printf("Error updating field %q on item %s: %v", def.Name, itemURL, err)
		m.recordField(outcomeID, def.Name, FieldError, err)
		return FieldError
	}
	m.recordField(outcomeID, def.Name, FieldApplied, nil)
	return FieldApplied
}

// recordItem journals an item outcome; journal failures are logged,
// never fatal.
func (m *Migrator) recordItem(runID int64, itemURL, itemID string, added bool, itemErr error) int64 {
	id, err := m.journal.RecordItem(runID, itemURL, itemID, added, itemErr)
	if err != nil {
		log.Printf("Error journaling item %s: %v", itemURL, err)
	}
	return id
}

func (m *Migrator) recordField(outcomeID int64, fieldName, outcome string, fieldErr error) {
	detail := ""
	if fieldErr != nil {
		detail = fieldErr.Error()
	}
	if err := m.journal.RecordField(outcomeID, fieldName, outcome, detail); err != nil {
		log.Printf("Error journaling field %q: %v", fieldName, err)
	}
}
