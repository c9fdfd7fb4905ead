// Package fields reconciles a target project's field schema with the
// values captured in a source snapshot: it filters the schema down to
// the migratable fields and translates raw snapshot values into
// target-side update payloads.
package fields

import (
	"encoding/json"
	"errors"
	"fmt"

	"gh-projects-migrate/projects"
)

// ignored lists the fields that are never migrated. Title and
// Repository are intrinsic to the item; the rest are service-managed
// and rejected by the field-update mutation.
var ignored = map[string]struct{}{
	"Title":                {},
	"Assignees":            {},
	"Labels":               {},
	"Linked pull requests": {},
	"Reviewers":            {},
	"Repository":           {},
	"Milestone":            {},
}

// IsIgnored reports whether a field name is excluded from migration.
func IsIgnored(name string) bool {
	_, ok := ignored[name]
	return ok
}

// Included filters defs down to the migratable fields, preserving the
// target schema's order.
func Included(defs []projects.FieldDef) []projects.FieldDef {
	out := make([]projects.FieldDef, 0, len(defs))
	for _, def := range defs {
		if IsIgnored(def.Name) {
			continue
		}
		out = append(out, def)
	}
	return out
}

// ErrNoMatch reports that a snapshot value has no equivalent option
// or iteration on the target field. Values are never fabricated; the
// field is skipped instead.
var ErrNoMatch = errors.New("no matching value on target field")

// Kind selects the payload shape of a field update.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindDate
	KindSingleSelect
	KindIteration
)

// Update is the resolved, target-side value for one field of one
// item. Exactly one payload member is meaningful, chosen by Kind.
type Update struct {
	Kind        Kind
	Text        string
	Number      float64
	Date        string
	OptionID    string
	IterationID string
}

// Resolve translates a raw snapshot value into an update against the
// target-side definition def. Any identifier in the returned update
// is def's own; source-side identifiers never appear here.
func Resolve(def projects.FieldDef, raw json.RawMessage) (Update, error) {
	switch def.DataType {
	case projects.DataTypeSingleSelect:
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return Update{}, fmt.Errorf("field %q: decode option value: %w", def.Name, err)
		}
		for _, opt := range def.Options {
			if opt.Name == name {
				return Update{Kind: KindSingleSelect, OptionID: opt.ID}, nil
			}
		}
		return Update{}, fmt.Errorf("field %q option %q: %w", def.Name, name, ErrNoMatch)

	case projects.DataTypeIteration:
		var val projects.IterationValue
		if err := json.Unmarshal(raw, &val); err != nil {
			return Update{}, fmt.Errorf("field %q: decode iteration value: %w", def.Name, err)
		}
		// Title, start date and duration must all match; a partial
		// match could land the value in the wrong sprint.
		for _, it := range def.Iterations {
			if it.Title == val.Title && it.StartDate == val.StartDate && it.Duration == val.Duration {
				return Update{Kind: KindIteration, IterationID: it.ID}, nil
			}
		}
		return Update{}, fmt.Errorf("field %q iteration %q (%s, %dd): %w",
			def.Name, val.Title, val.StartDate, val.Duration, ErrNoMatch)

	case projects.DataTypeNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Update{}, fmt.Errorf("field %q: decode number: %w", def.Name, err)
		}
		return Update{Kind: KindNumber, Number: n}, nil

	case projects.DataTypeDate:
		var d string
		if err := json.Unmarshal(raw, &d); err != nil {
			return Update{}, fmt.Errorf("field %q: decode date: %w", def.Name, err)
		}
		return Update{Kind: KindDate, Date: d}, nil

	default:
		// TEXT, and any type this tool does not recognize, goes
		// through verbatim as text.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Update{}, fmt.Errorf("field %q: decode text: %w", def.Name, err)
		}
		return Update{Kind: KindText, Text: s}, nil
	}
}
