// Package projects defines the domain model for GitHub Projects v2
// boards and reads the snapshot files captured from the source
// organization.
package projects

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DataType identifies a project field type. Values mirror the
// dataType tag the field-list query returns; anything outside the
// five migrated types is passed through as text.
type DataType string

const (
	DataTypeText         DataType = "TEXT"
	DataTypeNumber       DataType = "NUMBER"
	DataTypeDate         DataType = "DATE"
	DataTypeSingleSelect DataType = "SINGLE_SELECT"
	DataTypeIteration    DataType = "ITERATION"
)

// Project identifies one board within an organization.
type Project struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Owner  Owner  `json:"owner"`
}

// Owner is the organization (or user) a project belongs to.
type Owner struct {
	Login string `json:"login"`
}

// Option is a selectable value of a SINGLE_SELECT field.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Iteration is a dated sprint bucket of an ITERATION field.
type Iteration struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	Duration  int    `json:"duration"`
}

// FieldDef describes one field of a project's schema. A migration
// holds two independent sets of these, source-side and target-side,
// matched by name only: the IDs of one side are meaningless on the
// other and must never cross over.
type FieldDef struct {
	ID         string
	Name       string
	DataType   DataType
	Options    []Option    // SINGLE_SELECT only
	Iterations []Iteration // ITERATION only
}

type iterationConfig struct {
	Iterations []Iteration `json:"iterations"`
}

// fieldJSON is the wire shape of a field definition. The field-list
// query emits three variants of it: plain fields carry only id, name
// and dataType, single-select fields add options, iteration fields
// add configuration.iterations.
type fieldJSON struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	DataType      DataType         `json:"dataType"`
	Options       []Option         `json:"options,omitempty"`
	Configuration *iterationConfig `json:"configuration,omitempty"`
}

func (f *FieldDef) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.ID = raw.ID
	f.Name = raw.Name
	f.DataType = raw.DataType
	f.Options = raw.Options
	if raw.Configuration != nil {
		f.Iterations = raw.Configuration.Iterations
	}
	return nil
}

func (f FieldDef) MarshalJSON() ([]byte, error) {
	raw := fieldJSON{
		ID:       f.ID,
		Name:     f.Name,
		DataType: f.DataType,
		Options:  f.Options,
	}
	if len(f.Iterations) > 0 {
		raw.Configuration = &iterationConfig{Iterations: f.Iterations}
	}
	return json.Marshal(raw)
}

// IterationValue is the structured descriptor an iteration field
// carries in an item snapshot. After migration an iteration is only
// identifiable by these three attributes together.
type IterationValue struct {
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	Duration  int    `json:"duration"`
}

// Item is one row of a source project's item snapshot. Field values
// sit in Attributes keyed by the field display name with its first
// rune lower-cased (see AttributeKey); the content URL and repository
// come from the snapshot's fixed keys.
type Item struct {
	ContentURL string
	Repository string
	Attributes map[string]json.RawMessage
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if c, ok := raw["content"]; ok {
		var content struct {
			URL        string `json:"url"`
			Repository string `json:"repository"`
		}
		if err := json.Unmarshal(c, &content); err != nil {
			return err
		}
		it.ContentURL = content.URL
		it.Repository = content.Repository
	}
	// A top-level repository key wins over content.repository.
	if r, ok := raw["repository"]; ok {
		var repo string
		if err := json.Unmarshal(r, &repo); err == nil && repo != "" {
			it.Repository = repo
		}
	}
	delete(raw, "content")
	delete(raw, "repository")
	delete(raw, "id")
	it.Attributes = raw
	return nil
}

// AttributeKey derives the snapshot attribute key for a field display
// name: the first rune lower-cased, the rest untouched. "Status"
// becomes "status", "Linked pull requests" becomes
// "linked pull requests".
func AttributeKey(fieldName string) string {
	r, size := utf8.DecodeRuneInString(fieldName)
	if size == 0 || r == utf8.RuneError {
		return fieldName
	}
	return string(unicode.ToLower(r)) + fieldName[size:]
}

// EmptyValue reports whether a snapshot attribute carries no value
// worth migrating.
func EmptyValue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""`
}
