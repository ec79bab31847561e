package docstore

import (
	"fmt"
)

type condition struct {
	field string
	oneOf []any
}

type writeConfig struct {
	overwrite  bool
	ifAbsent   bool
	revision   *int64
	conditions []condition
}

// WriteOption alters how Write applies fields.
type WriteOption func(*writeConfig)

// Overwrite replaces the stored document instead of merging into it.
func Overwrite() WriteOption {
	return func(c *writeConfig) { c.overwrite = true }
}

// IfAbsent only creates; an existing document fails the precondition.
func IfAbsent() WriteOption {
	return func(c *writeConfig) { c.ifAbsent = true }
}

// IfRevision applies the write only when the stored revision equals rev.
// Revision 0 means the document must not exist yet.
func IfRevision(rev int64) WriteOption {
	return func(c *writeConfig) { c.revision = &rev }
}

// When applies the write only if the stored top-level field equals one of
// oneOf. A missing field (or a missing document) matches nil.
func When(field string, oneOf ...any) WriteOption {
	if len(oneOf) == 0 {
		oneOf = []any{nil}
	}
	return func(c *writeConfig) {
		c.conditions = append(c.conditions, condition{field: field, oneOf: oneOf})
	}
}

func newWriteConfig(opts []WriteOption) writeConfig {
	var cfg writeConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// apply computes the next document state from the current one. current is nil
// when the document does not exist. Both Memory and SQL stores share it so the
// precondition semantics cannot drift.
func apply(current *Document, fields map[string]any, cfg writeConfig) (map[string]any, error) {
	patch, err := normalizeMap(fields)
	if err != nil {
		return nil, err
	}

	existing := map[string]any{}
	var revision int64
	if current != nil {
		existing = current.Data
		revision = current.Revision
		if cfg.ifAbsent {
			return nil, ErrPreconditionFailed
		}
	}
	if cfg.revision != nil && *cfg.revision != revision {
		return nil, fmt.Errorf("%w: revision %d, expected %d", ErrPreconditionFailed, revision, *cfg.revision)
	}
	for _, cond := range cfg.conditions {
		ok, err := cond.matches(existing)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPreconditionFailed, cond.field)
		}
	}

	if cfg.overwrite || current == nil {
		return patch, nil
	}
	return mergeMaps(cloneMap(existing), patch), nil
}

func (c condition) matches(data map[string]any) (bool, error) {
	got := data[c.field]
	for _, candidate := range c.oneOf {
		want, err := normalizeValue(candidate)
		if err != nil {
			return false, err
		}
		if valuesEqual(got, want) {
			return true, nil
		}
	}
	return false, nil
}
