package internal

import (
	"strings"

	"github.com/lychee-technology/dynaform"
)

var (
	systemColumnID        = mustIdentifier("id")
	systemColumnCreatedAt = mustIdentifier("created_at")
	systemColumnUpdatedAt = mustIdentifier("updated_at")
	systemColumnDeletedAt = mustIdentifier("deleted_at")
	systemColumnCreatedBy = mustIdentifier("created_by")
	systemColumnSlug      = mustIdentifier("slug")
	systemColumnStatus    = mustIdentifier("status")
)

// reservedColumns cannot back a user field: they are either the primary key or
// a system column some configuration may provision.
var reservedColumns = NewSet(
	"id", "created_at", "updated_at", "deleted_at", "version",
	"created_by", "updated_by", "metadata", "slug", "status", "visibility",
)

// autoManagedKeys are stripped from record payloads before validation.
var autoManagedKeys = []string{"id", "created_at", "updated_at", "deleted_at"}

func isReservedColumn(name string) bool {
	return reservedColumns.Contains(name)
}

// Values accepted by the status and visibility CHECK constraints.
var (
	statusValues     = []string{"draft", "published", "archived", "scheduled"}
	visibilityValues = []string{"public", "private", "internal"}
)

// payloadWrite says when a record payload may set a system column.
type payloadWrite int

const (
	// writeNever columns are filled by the engine or the database.
	writeNever payloadWrite = iota
	writeOnCreate
	writeAlways
)

type systemFieldDef struct {
	name      string
	fieldType dynaform.FieldType
	required  bool
	write     payloadWrite
	allowed   []string
	enabled   func(dynaform.SystemFieldConfig) bool
}

var systemFieldDefs = []systemFieldDef{
	{"created_at", dynaform.FieldTypeTimestamp, true, writeNever, nil, dynaform.SystemFieldConfig.Timestamps},
	{"updated_at", dynaform.FieldTypeTimestamp, true, writeNever, nil, dynaform.SystemFieldConfig.Timestamps},
	{"deleted_at", dynaform.FieldTypeTimestamp, false, writeNever, nil, func(c dynaform.SystemFieldConfig) bool { return c.HasSoftDelete }},
	{"version", dynaform.FieldTypeInteger, true, writeOnCreate, nil, func(c dynaform.SystemFieldConfig) bool { return c.HasVersioning }},
	{"created_by", dynaform.FieldTypeUUID, false, writeNever, nil, func(c dynaform.SystemFieldConfig) bool { return c.HasCreatedBy }},
	{"updated_by", dynaform.FieldTypeUUID, false, writeNever, nil, func(c dynaform.SystemFieldConfig) bool { return c.HasUpdatedBy }},
	{"metadata", dynaform.FieldTypeJSONB, false, writeAlways, nil, func(c dynaform.SystemFieldConfig) bool { return c.HasMetadata }},
	{"slug", dynaform.FieldTypeSlug, false, writeAlways, nil, func(c dynaform.SystemFieldConfig) bool { return c.HasSlug }},
	{"status", dynaform.FieldTypeEnum, false, writeAlways, statusValues, func(c dynaform.SystemFieldConfig) bool { return c.HasStatus }},
	{"visibility", dynaform.FieldTypeEnum, false, writeAlways, visibilityValues, func(c dynaform.SystemFieldConfig) bool { return c.HasVisibility }},
}

func systemFieldDefByName(name string) (systemFieldDef, bool) {
	for _, def := range systemFieldDefs {
		if def.name == name {
			return def, true
		}
	}
	return systemFieldDef{}, false
}

// writableOnCreate and writableOnUpdate report whether a record payload may set def.
func (def systemFieldDef) writableOnCreate() bool { return def.write != writeNever }
func (def systemFieldDef) writableOnUpdate() bool { return def.write == writeAlways }

// sqlValueList renders values as a quoted SQL list for IN (...).
func sqlValueList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

// systemFields returns the metadata rows describing the system columns that
// cfg provisions, positioned after the user fields.
func systemFields(cfg dynaform.SystemFieldConfig, startPosition int) []*dynaform.Field {
	out := make([]*dynaform.Field, 0, len(systemFieldDefs))
	for _, def := range systemFieldDefs {
		if !def.enabled(cfg) {
			continue
		}
		out = append(out, &dynaform.Field{
			Name:     def.name,
			DBColumn: def.name,
			Type:     def.fieldType,
			Required: def.required,
			System:   true,
			Position: startPosition + len(out),
		})
	}
	return out
}
