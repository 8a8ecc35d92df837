package repositorycache

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// Model describes how a repository handles entities of type T.
type Model[T any] struct {
	// Cluster is used when a sharding key carries no cluster name.
	Cluster string
	// Table is the logical table name. Defaults to the snake_case type name.
	Table string
	// Global marks an unsharded table living in the cluster's global database.
	Global bool
	// NoCache disables both cache levels for this entity.
	NoCache bool
	// PK extracts the primary key of an entity. Required.
	PK func(T) shard.EntityPK
	// NeedsID reports whether a row about to be inserted has no id yet.
	NeedsID func(T) bool
	// SetID assigns a generated id.
	SetID func(*T, int64)
	// Project keeps only the named fields. Defaults to ProjectFields.
	Project func(T, []string) (T, error)
	// Values exposes field values used to order merged cross-shard results.
	// Defaults to the msgpack field names of T.
	Values func(T) (map[string]any, error)
}

func (m Model[T]) withDefaults() (Model[T], error) {
	if m.PK == nil {
		return m, errors.New("model PK function is required")
	}
	m.Table = m.TableName()
	if m.Table == "" {
		return m, errors.New("model table name is required")
	}
	if m.Project == nil {
		m.Project = ProjectFields[T]
	}
	if m.Values == nil {
		m.Values = FieldValues[T]
	}
	return m, nil
}

// TableName returns Table, or the snake_case name of T when Table is empty.
func (m Model[T]) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return toSnake(reflect.TypeOf((*T)(nil)).Elem().Name())
}

// toSnake splits a type name into lower-case words joined by underscores.
// Words break at case changes, at digit runs and at any other rune, so
// generic names like Box[pkg.Item] become box_pkg_item.
func toSnake(name string) string {
	runes := []rune(name)
	var words []string
	var word []rune
	flush := func() {
		if len(word) > 0 {
			words = append(words, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(word) > 0 && startsWord(runes, i) {
			flush()
		}
		word = append(word, r)
	}
	flush()
	return strings.Join(words, "_")
}

func startsWord(runes []rune, i int) bool {
	r, prev := runes[i], runes[i-1]
	switch {
	case unicode.IsDigit(r):
		return !unicode.IsDigit(prev)
	case unicode.IsDigit(prev):
		return true
	case unicode.IsUpper(r) && unicode.IsLower(prev):
		return true
	case unicode.IsUpper(r) && unicode.IsUpper(prev):
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	}
	return false
}

// ProjectFields returns a copy of v in which only the named fields are set.
// Field names are the msgpack names of T's fields.
func ProjectFields[T any](v T, fields []string) (T, error) {
	var out T
	if len(fields) == 0 {
		return v, nil
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return out, err
	}
	var all map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(b, &all); err != nil {
		return out, err
	}
	kept := make(map[string]msgpack.RawMessage, len(fields))
	for _, f := range fields {
		if raw, ok := all[f]; ok {
			kept[f] = raw
		}
	}
	b, err = msgpack.Marshal(kept)
	if err != nil {
		return out, err
	}
	err = msgpack.Unmarshal(b, &out)
	return out, err
}

// FieldValues decodes v into a map keyed by msgpack field name.
func FieldValues[T any](v T) (map[string]any, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := msgpack.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
