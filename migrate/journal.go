package migrate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Field outcome labels recorded per item field.
const (
	FieldApplied = "applied"
	FieldNoMatch = "no-match"
	FieldError   = "error"
)

// Journal records migration outcomes in a local sqlite database so a
// partial run can be audited and retried by hand. It is bookkeeping
// only: resume decisions come from the artifact files, never from
// here.
type Journal struct {
	*sql.DB
}

// OpenJournal opens (creating if needed) the journal database.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	return &Journal{db}, nil
}

func createSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS project_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_number INTEGER NOT NULL,
		target_number INTEGER,
		target_project_id TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS item_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		item_url TEXT NOT NULL,
		item_id TEXT,
		added INTEGER NOT NULL,
		error TEXT,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS field_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_outcome_id INTEGER NOT NULL,
		field_name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT
	);
	`
	_, err := db.Exec(query)
	return err
}

// ItemOutcome is one journal row for an item-add attempt.
type ItemOutcome struct {
	ID         int64
	RunID      int64
	ItemURL    string
	ItemID     sql.NullString
	Added      bool
	Error      sql.NullString
	RecordedAt time.Time
}

// FieldOutcome is one journal row for a field-update attempt.
type FieldOutcome struct {
	ID            int64
	ItemOutcomeID int64
	FieldName     string
	Outcome       string
	Detail        sql.NullString
}

// StartProject opens a journal run for one source project.
func (j *Journal) StartProject(sourceNumber int) (int64, error) {
	res, err := j.Exec(
		"INSERT INTO project_runs (source_number, started_at) VALUES (?, ?)",
		sourceNumber, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishProject closes a run with the target project's identifiers.
func (j *Journal) FinishProject(runID int64, targetNumber int, targetProjectID string) error {
	_, err := j.Exec(
		"UPDATE project_runs SET target_number = ?, target_project_id = ?, finished_at = ? WHERE id = ?",
		targetNumber, targetProjectID, time.Now(), runID)
	return err
}

// RecordItem records the result of one item-add attempt and returns
// the row ID for attaching field outcomes.
func (j *Journal) RecordItem(runID int64, itemURL, itemID string, added bool, itemErr error) (int64, error) {
	var errText sql.NullString
	if itemErr != nil {
		errText = sql.NullString{String: itemErr.Error(), Valid: true}
	}
	var id sql.NullString
	if itemID != "" {
		id = sql.NullString{String: itemID, Valid: true}
	}
	res, err := j.Exec(
		"INSERT INTO item_outcomes (run_id, item_url, item_id, added, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, itemURL, id, added, errText, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordField records the outcome of one field update on an item.
func (j *Journal) RecordField(itemOutcomeID int64, fieldName, outcome, detail string) error {
	var d sql.NullString
	if detail != "" {
		d = sql.NullString{String: detail, Valid: true}
	}
	_, err := j.Exec(
		"INSERT INTO field_outcomes (item_outcome_id, field_name, outcome, detail) VALUES (?, ?, ?, ?)",
		itemOutcomeID, fieldName, outcome, d)
	return err
}

// ItemOutcomes lists the item rows of one run, in recorded order.
func (j *Journal) ItemOutcomes(runID int64) ([]*ItemOutcome, error) {
	rows, err := j.Query(
		"SELECT id, run_id, item_url, item_id, added, error, recorded_at FROM item_outcomes WHERE run_id = ? ORDER BY id",
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ItemOutcome
	for rows.Next() {
		var item ItemOutcome
		if err := rows.Scan(&item.ID, &item.RunID, &item.ItemURL, &item.ItemID, &item.Added, &item.Error, &item.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// FieldOutcomes lists the field rows attached to one item outcome.
func (j *Journal) FieldOutcomes(itemOutcomeID int64) ([]*FieldOutcome, error) {
	rows, err := j.Query(
		"SELECT id, item_outcome_id, field_name, outcome, detail FROM field_outcomes WHERE item_outcome_id = ? ORDER BY id",
		itemOutcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*FieldOutcome
	for rows.Next() {
		var fo FieldOutcome
		if err := rows.Scan(&fo.ID, &fo.ItemOutcomeID, &fo.FieldName, &fo.Outcome, &fo.Detail); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, &fo)
	}
	return outcomes, rows.Err()
}
