package dynaform

import (
	"time"

	"github.com/google/uuid"
)

// CollectionStatus is the lifecycle state of a collection.
type CollectionStatus string

const (
	CollectionStatusActive   CollectionStatus = "ACTIVE"
	CollectionStatusArchived CollectionStatus = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s CollectionStatus) Valid() bool {
	return s == CollectionStatusActive || s == CollectionStatusArchived
}

// RelationType describes the cardinality of a relation between two collections.
type RelationType string

const (
	RelationOneToOne   RelationType = "one-to-one"
	RelationOneToMany  RelationType = "one-to-many"
	RelationManyToMany RelationType = "many-to-many"
)

// OnDeletePolicy is the declared behaviour of a relation when the related record is removed.
type OnDeletePolicy string

const (
	OnDeleteCascade  OnDeletePolicy = "CASCADE"
	OnDeleteSetNull  OnDeletePolicy = "SET NULL"
	OnDeleteRestrict OnDeletePolicy = "RESTRICT"
	OnDeleteNoAction OnDeletePolicy = "NO ACTION"
)

// Collection is a user-defined content type backed by exactly one physical table.
type Collection struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	DisplayName  string            `json:"displayName"`
	Description  string            `json:"description,omitempty"`
	TableName    string            `json:"tableName"`
	Status       CollectionStatus  `json:"status"`
	SystemConfig SystemFieldConfig `json:"systemConfig"`
	Fields       []*Field          `json:"fields,omitempty"`
	Relations    []*Relation       `json:"relations,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// UserFields returns the declared (non-system) fields in position order.
func (c *Collection) UserFields() []*Field {
	out := make([]*Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if !f.System {
			out = append(out, f)
		}
	}
	return out
}

// Field is one logical column of a collection.
type Field struct {
	ID           uuid.UUID        `json:"id"`
	CollectionID uuid.UUID        `json:"collectionId"`
	Name         string           `json:"name"`
	DBColumn     string           `json:"dbColumn"`
	Type         FieldType        `json:"type"`
	Required     bool             `json:"required"`
	Indexed      bool             `json:"indexed,omitempty"`
	Unique       bool             `json:"unique,omitempty"`
	Searchable   bool             `json:"searchable,omitempty"`
	System       bool             `json:"system,omitempty"`
	Rules        *ValidationRules `json:"rules,omitempty"`
	Position     int              `json:"position"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Relation is declared metadata linking two collections.
type Relation struct {
	ID                  uuid.UUID      `json:"id"`
	CollectionID        uuid.UUID      `json:"collectionId"`
	RelatedCollectionID uuid.UUID      `json:"relatedCollectionId"`
	RelationType        RelationType   `json:"relationType"`
	OnDelete            OnDeletePolicy `json:"onDelete"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// SystemFieldConfig selects the implicit columns provisioned with a collection table.
// Timestamps are on unless explicitly disabled.
type SystemFieldConfig struct {
	HasTimestamps *bool `json:"hasTimestamps,omitempty" yaml:"hasTimestamps,omitempty"`
	HasSoftDelete bool  `json:"hasSoftDelete,omitempty" yaml:"hasSoftDelete,omitempty"`
	HasVersioning bool  `json:"hasVersioning,omitempty" yaml:"hasVersioning,omitempty"`
	HasCreatedBy  bool  `json:"hasCreatedBy,omitempty" yaml:"hasCreatedBy,omitempty"`
	HasUpdatedBy  bool  `json:"hasUpdatedBy,omitempty" yaml:"hasUpdatedBy,omitempty"`
	HasMetadata   bool  `json:"hasMetadata,omitempty" yaml:"hasMetadata,omitempty"`
	HasSlug       bool  `json:"hasSlug,omitempty" yaml:"hasSlug,omitempty"`
	HasStatus     bool  `json:"hasStatus,omitempty" yaml:"hasStatus,omitempty"`
	HasVisibility bool  `json:"hasVisibility,omitempty" yaml:"hasVisibility,omitempty"`
}

// Timestamps reports whether created_at/updated_at are provisioned.
func (c SystemFieldConfig) Timestamps() bool {
	return c.HasTimestamps == nil || *c.HasTimestamps
}

// Record is one row of a collection table keyed by field name.
type Record struct {
	Collection string         `json:"collection"`
	ID         uuid.UUID      `json:"id"`
	Data       map[string]any `json:"data"`
}

// ListResult is one page of records.
type ListResult struct {
	Records    []*Record `json:"records"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}

// CreateCollectionRequest declares a new collection.
type CreateCollectionRequest struct {
	Name         string            `json:"name" yaml:"name"`
	DisplayName  string            `json:"displayName" yaml:"displayName"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	TableName    string            `json:"tableName,omitempty" yaml:"tableName,omitempty"`
	SystemConfig SystemFieldConfig `json:"systemConfig" yaml:"systemConfig"`
	Fields       []AddFieldRequest `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// AddFieldRequest declares a new field on an existing collection.
type AddFieldRequest struct {
	Name       string           `json:"name" yaml:"name"`
	Type       FieldType        `json:"type" yaml:"type"`
	DBColumn   string           `json:"dbColumn,omitempty" yaml:"dbColumn,omitempty"`
	Required   bool             `json:"required,omitempty" yaml:"required,omitempty"`
	Indexed    bool             `json:"indexed,omitempty" yaml:"indexed,omitempty"`
	Unique     bool             `json:"unique,omitempty" yaml:"unique,omitempty"`
	Searchable bool             `json:"searchable,omitempty" yaml:"searchable,omitempty"`
	Rules      *ValidationRules `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// UpdateFieldRequest changes the type and/or the required flag of a field.
// A nil member is left unchanged.
type UpdateFieldRequest struct {
	Type     *FieldType       `json:"type,omitempty"`
	Required *bool            `json:"required,omitempty"`
	Rules    *ValidationRules `json:"rules,omitempty"`
}

// AddRelationRequest declares a relation between two collections.
type AddRelationRequest struct {
	CollectionID        uuid.UUID      `json:"collectionId"`
	RelatedCollectionID uuid.UUID      `json:"relatedCollectionId"`
	RelationType        RelationType   `json:"relationType"`
	OnDelete            OnDeletePolicy `json:"onDelete,omitempty"`
}
