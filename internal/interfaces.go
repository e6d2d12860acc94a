package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/lychee-technology/dynaform"
)

// MetadataStore persists collection, field and relation metadata. Lookups
// return (nil, nil) when the row does not exist.
type MetadataStore interface {
	// InsertCollection writes the collection row and every field in c.Fields atomically.
	InsertCollection(ctx context.Context, c *dynaform.Collection) error
	// GetCollection returns the collection with its fields and relations.
	GetCollection(ctx context.Context, id uuid.UUID) (*dynaform.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*dynaform.Collection, error)
	ListCollections(ctx context.Context) ([]*dynaform.Collection, error)
	UpdateCollectionStatus(ctx context.Context, id uuid.UUID, status dynaform.CollectionStatus) error
	// DeleteCollection removes the collection row; fields and relations cascade.
	DeleteCollection(ctx context.Context, id uuid.UUID) error

	InsertField(ctx context.Context, f *dynaform.Field) error
	GetField(ctx context.Context, id uuid.UUID) (*dynaform.Field, error)
	ListFields(ctx context.Context, collectionID uuid.UUID) ([]*dynaform.Field, error)
	UpdateField(ctx context.Context, f *dynaform.Field) error
	DeleteField(ctx context.Context, id uuid.UUID) error

	InsertRelation(ctx context.Context, r *dynaform.Relation) error
	ListRelations(ctx context.Context, collectionID uuid.UUID) ([]*dynaform.Relation, error)
}

// DataStoreExecutor runs SQL against the relational store. Every call is its
// own implicit transaction. Errors are returned as the store reported them.
type DataStoreExecutor interface {
	// ExecDDL runs one schema statement without bind parameters.
	ExecDDL(ctx context.Context, stmt string) error
	// Exec runs a parameterized statement and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// Query runs a parameterized statement and returns its rows keyed by column name.
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}
