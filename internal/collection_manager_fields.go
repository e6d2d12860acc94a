package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/lychee-technology/dynaform"
	"go.uber.org/zap"
)

// buildField validates a field declaration against the collection's current
// fields and returns the metadata row to persist.
func (cm *collectionManager) buildField(collection *dynaform.Collection, req *dynaform.AddFieldRequest) (*dynaform.Field, error) {
	if err := validateLogicalName("name", req.Name); err != nil {
		return nil, err
	}
	fieldType := req.Type.Normalize()
	if !cm.registry.Has(fieldType) {
		return nil, dynaform.NewUnknownFieldTypeError(req.Name, req.Type)
	}

	dbColumn, err := derivePhysicalName("dbColumn", req.Name, req.DBColumn)
	if err != nil {
		return nil, err
	}
	if isReservedColumn(dbColumn) {
		return nil, dynaform.NewInvalidNameError("dbColumn", "column "+dbColumn+" is reserved for system fields")
	}

	for _, existing := range collection.Fields {
		if existing.Name == req.Name || existing.DBColumn == dbColumn {
			return nil, dynaform.NewFieldExistsError(collection.Name, req.Name)
		}
	}

	now := cm.now()
	return &dynaform.Field{
		ID:           uuid.Must(uuid.NewV7()),
		CollectionID: collection.ID,
		Name:         req.Name,
		DBColumn:     dbColumn,
		Type:         fieldType,
		Required:     req.Required,
		Indexed:      req.Indexed,
		Unique:       req.Unique,
		Searchable:   req.Searchable,
		Rules:        req.Rules,
		Position:     len(collection.Fields),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// resolveField loads a field and checks it belongs to the collection.
func (cm *collectionManager) resolveField(ctx context.Context, collectionID, fieldID uuid.UUID) (*dynaform.Collection, *dynaform.Field, error) {
	collection, err := cm.getCollection(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}
	field, err := cm.store.GetField(ctx, fieldID)
	if err != nil {
		return nil, nil, queryFailed(err)
	}
	if field == nil || field.CollectionID != collection.ID {
		return nil, nil, dynaform.NewFieldNotFoundError(collection.Name, fieldID.String())
	}
	return collection, field, nil
}

func (cm *collectionManager) AddField(ctx context.Context, collectionID uuid.UUID, req *dynaform.AddFieldRequest) (*dynaform.Field, error) {
	if req == nil {
		return nil, dynaform.NewValidationError("field", "request cannot be nil")
	}
	collection, err := cm.getCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	field, err := cm.buildField(collection, req)
	if err != nil {
		return nil, err
	}
	table, err := tableIdentifier(collection)
	if err != nil {
		return nil, dynaform.NewInternalError("stored table name is not a valid identifier", err)
	}
	spec, err := columnSpecFromField(field)
	if err != nil {
		return nil, dynaform.NewInvalidNameError("dbColumn", err.Error())
	}

	// the table already exists, so the column goes first and the metadata row last
	s := newSaga("add_field")
	if err := s.Step(ctx, SagaDDLApplied, "add column",
		func(ctx context.Context) error { return cm.execDDL(ctx, cm.generator.AddColumnSQL(table, spec)) },
		func(ctx context.Context) error {
			return cm.executor.ExecDDL(ctx, cm.generator.DropColumnSQL(table, spec.Column))
		},
	); err != nil {
		return nil, err
	}
	if spec.Indexed || spec.Unique || spec.Searchable {
		if err := s.Step(ctx, SagaDDLApplied, "add index",
			func(ctx context.Context) error {
				return cm.execDDL(ctx, cm.generator.AddIndexSQL(table, spec.Column, spec.Unique))
			}, nil,
		); err != nil {
			return nil, err
		}
	}
	if err := s.Step(ctx, SagaMetadataWritten, "insert field metadata",
		func(ctx context.Context) error {
			if err := cm.store.InsertField(ctx, field); err != nil {
				if isUniqueViolation(err) {
					return dynaform.NewFieldExistsError(collection.Name, field.Name).WithCause(err)
				}
				return queryFailed(err)
			}
			return nil
		}, nil,
	); err != nil {
		return nil, err
	}
	s.Commit(ctx)

	zap.S().Infow("field added", "collection", collection.Name, "field", field.Name, "column", field.DBColumn, "type", field.Type)
	return field, nil
}

// UpdateField changes a field's type and/or required flag. A type change alters
// the column first; a required-only change touches metadata alone and adds no
// NOT NULL constraint to the existing column.
func (cm *collectionManager) UpdateField(ctx context.Context, collectionID, fieldID uuid.UUID, req *dynaform.UpdateFieldRequest) (*dynaform.Field, error) {
	if req == nil {
		return nil, dynaform.NewValidationError("field", "request cannot be nil")
	}
	collection, field, err := cm.resolveField(ctx, collectionID, fieldID)
	if err != nil {
		return nil, err
	}
	if field.System {
		return nil, dynaform.NewSystemFieldError(field.Name)
	}

	updated := *field
	typeChanged := false
	if req.Type != nil {
		newType := req.Type.Normalize()
		if !cm.registry.Has(newType) {
			return nil, dynaform.NewUnknownFieldTypeError(field.Name, *req.Type)
		}
		if newType != field.Type {
			updated.Type = newType
			typeChanged = true
		}
	}
	if req.Required != nil {
		updated.Required = *req.Required
	}
	if req.Rules != nil {
		updated.Rules = req.Rules
	}
	if !typeChanged && updated.Required == field.Required && req.Rules == nil {
		return field, nil
	}
	updated.UpdatedAt = cm.now()

	s := newSaga("update_field")
	if typeChanged {
		table, err := tableIdentifier(collection)
		if err != nil {
			return nil, dynaform.NewInternalError("stored table name is not a valid identifier", err)
		}
		column, err := columnIdentifier(field)
		if err != nil {
			return nil, dynaform.NewInternalError("stored column name is not a valid identifier", err)
		}
		if err := s.Step(ctx, SagaDDLApplied, "alter column type",
			func(ctx context.Context) error {
				return cm.execDDL(ctx, cm.generator.ModifyColumnTypeSQL(table, column, updated.Type))
			},
			func(ctx context.Context) error {
				return cm.executor.ExecDDL(ctx, cm.generator.ModifyColumnTypeSQL(table, column, field.Type))
			},
		); err != nil {
			return nil, err
		}
	}
	if err := s.Step(ctx, SagaMetadataWritten, "update field metadata",
		func(ctx context.Context) error {
			if err := cm.store.UpdateField(ctx, &updated); err != nil {
				return queryFailed(err)
			}
			return nil
		}, nil,
	); err != nil {
		return nil, err
	}
	s.Commit(ctx)

	zap.S().Infow("field updated", "collection", collection.Name, "field", field.Name, "type", updated.Type, "required", updated.Required)
	return &updated, nil
}

func (cm *collectionManager) DeleteField(ctx context.Context, collectionID, fieldID uuid.UUID) error {
	collection, field, err := cm.resolveField(ctx, collectionID, fieldID)
	if err != nil {
		return err
	}
	if field.System {
		return dynaform.NewSystemFieldError(field.Name)
	}
	table, err := tableIdentifier(collection)
	if err != nil {
		return dynaform.NewInternalError("stored table name is not a valid identifier", err)
	}
	spec, err := columnSpecFromField(field)
	if err != nil {
		return dynaform.NewInternalError("stored column name is not a valid identifier", err)
	}

	s := newSaga("delete_field")
	if err := s.Step(ctx, SagaDDLApplied, "drop column",
		func(ctx context.Context) error {
			return cm.execDDL(ctx, cm.generator.DropColumnSQL(table, spec.Column))
		},
		func(ctx context.Context) error {
			if err := cm.executor.ExecDDL(ctx, cm.generator.AddColumnSQL(table, spec)); err != nil {
				return err
			}
			if spec.Indexed || spec.Unique || spec.Searchable {
				return cm.executor.ExecDDL(ctx, cm.generator.AddIndexSQL(table, spec.Column, spec.Unique))
			}
			return nil
		},
	); err != nil {
		return err
	}
	if err := s.Step(ctx, SagaMetadataWritten, "delete field metadata",
		func(ctx context.Context) error {
			if err := cm.store.DeleteField(ctx, field.ID); err != nil {
				return queryFailed(err)
			}
			return nil
		}, nil,
	); err != nil {
		return err
	}
	s.Commit(ctx)

	zap.S().Infow("field deleted", "collection", collection.Name, "field", field.Name, "column", field.DBColumn)
	return nil
}
