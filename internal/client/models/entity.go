// Package models defines the entity kinds mirrored from the backend and the
// generic record shape the local store and remote client exchange.
package models

import (
	"fmt"
	"time"
)

// EntityType names one of the four mirrored tables.
type EntityType string

const (
	EntityWine     EntityType = "wines"
	EntityBottle   EntityType = "bottles"
	EntityTasting  EntityType = "tastings"
	EntityLocation EntityType = "locations"
)

// AllEntityTypes lists every mirrored entity kind.
var AllEntityTypes = []EntityType{EntityWine, EntityBottle, EntityTasting, EntityLocation}

// Valid reports whether t is a known entity kind.
func (t EntityType) Valid() bool {
	switch t {
	case EntityWine, EntityBottle, EntityTasting, EntityLocation:
		return true
	}
	return false
}

// PhotoField is the field that carries a record's photo reference, for the
// kinds that have one.
const PhotoField = "photo_path"

// foreignKeys maps each entity kind to the payload fields that reference
// another entity's id. This is the complete set of fields subject to
// identifier reconciliation after an offline insert syncs.
var foreignKeys = map[EntityType][]string{
	EntityBottle:  {"wine_id", "location_id"},
	EntityTasting: {"wine_id"},
}

// ForeignKeys returns the names of the fields of t that hold entity
// references. The returned slice must not be mutated.
func ForeignKeys(t EntityType) []string {
	return foreignKeys[t]
}

// Record is the generic persisted shape of one entity: a server (or
// temporary) id, the domain fields as a flat map, and the server-maintained
// timestamps.
type Record struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy: the field map is copied, values are
// shared (they are JSON scalars in practice).
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// StringField returns the named field as a string, or "" if absent or of
// another type.
func (r Record) StringField(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

// MutationKind classifies a pending write operation.
type MutationKind string

const (
	MutationInsert MutationKind = "insert"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Valid reports whether k is a known mutation kind.
func (k MutationKind) Valid() bool {
	switch k {
	case MutationInsert, MutationUpdate, MutationDelete:
		return true
	}
	return false
}

// ErrUnknownEntityType is returned for operations against a table that is
// not one of the mirrored kinds.
func ErrUnknownEntityType(t EntityType) error {
	return fmt.Errorf("unknown entity type %q", t)
}
