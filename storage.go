package dynaform

import (
	"context"

	"github.com/google/uuid"
)

// CollectionManager provisions and evolves collections and their physical tables.
type CollectionManager interface {
	// Collection lifecycle
	CreateCollection(ctx context.Context, req *CreateCollectionRequest) (*Collection, error)
	DeleteCollection(ctx context.Context, id uuid.UUID) error
	SetCollectionStatus(ctx context.Context, id uuid.UUID, status CollectionStatus) (*Collection, error)

	// Collection reads, always with fields
	GetCollection(ctx context.Context, id uuid.UUID) (*Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*Collection, error)
	ListCollections(ctx context.Context) ([]*Collection, error)

	// Field lifecycle
	AddField(ctx context.Context, collectionID uuid.UUID, req *AddFieldRequest) (*Field, error)
	UpdateField(ctx context.Context, collectionID, fieldID uuid.UUID, req *UpdateFieldRequest) (*Field, error)
	DeleteField(ctx context.Context, collectionID, fieldID uuid.UUID) error

	// Relations are declared metadata only
	AddRelation(ctx context.Context, req *AddRelationRequest) (*Relation, error)
}

// RecordEngine reads and writes records of a named collection.
type RecordEngine interface {
	List(ctx context.Context, collection string, page, limit int) (*ListResult, error)
	Get(ctx context.Context, collection string, id uuid.UUID) (*Record, error)
	Create(ctx context.Context, collection string, payload map[string]any) (*Record, error)
	Update(ctx context.Context, collection string, id uuid.UUID, payload map[string]any) (*Record, error)
	Delete(ctx context.Context, collection string, id uuid.UUID) error
}
