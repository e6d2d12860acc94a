package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/dynaform"
	"go.uber.org/zap"
)

// reservedTablePrefix keeps collection tables apart from the metadata tables.
const reservedTablePrefix = "dynaform_"

// reservedTableNames are tables owned by other tooling in the same schema.
var reservedTableNames = NewSet("goose_db_version")

const tableExistsSQL = `SELECT to_regclass($1) IS NOT NULL AS "exists"`

type collectionManager struct {
	store     MetadataStore
	executor  DataStoreExecutor
	generator *SchemaGenerator
	registry  *FieldTypeRegistry
	notifier  dynaform.Notifier
	nowFunc   func() time.Time
}

// NewCollectionManager creates a CollectionManager. notifier may be nil.
func NewCollectionManager(
	store MetadataStore,
	executor DataStoreExecutor,
	registry *FieldTypeRegistry,
	notifier dynaform.Notifier,
) dynaform.CollectionManager {
	return newCollectionManager(store, executor, registry, notifier)
}

func newCollectionManager(store MetadataStore, executor DataStoreExecutor, registry *FieldTypeRegistry, notifier dynaform.Notifier) *collectionManager {
	if registry == nil {
		registry = DefaultFieldTypeRegistry()
	}
	return &collectionManager{
		store:     store,
		executor:  executor,
		generator: NewSchemaGenerator(registry),
		registry:  registry,
		notifier:  notifier,
		nowFunc:   time.Now,
	}
}

func (cm *collectionManager) withClock(now func() time.Time) {
	if now != nil {
		cm.nowFunc = now
	}
}

func (cm *collectionManager) now() time.Time {
	return cm.nowFunc().UTC()
}

func queryFailed(err error) *dynaform.DynaformError {
	return dynaform.NewSchemaExecutionError(dynaform.ErrCodeQueryFailed, err)
}

func ddlFailed(err error) *dynaform.DynaformError {
	return dynaform.NewSchemaExecutionError(dynaform.ErrCodeDDLFailed, err)
}

func (cm *collectionManager) execDDL(ctx context.Context, stmt string) error {
	if err := cm.executor.ExecDDL(ctx, stmt); err != nil {
		return ddlFailed(err)
	}
	return nil
}

func validateCreateRequest(req *dynaform.CreateCollectionRequest) error {
	if req == nil {
		return dynaform.NewValidationError("collection", "request cannot be nil")
	}
	if err := validateLogicalName("name", req.Name); err != nil {
		return err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return dynaform.NewValidationError("displayName", "displayName is required")
	}
	return nil
}

// planCollection builds the collection with its user and system fields and
// renders the statements that provision its table.
func (cm *collectionManager) planCollection(req *dynaform.CreateCollectionRequest) (*dynaform.Collection, Identifier, []string, error) {
	tableName, err := derivePhysicalName("tableName", req.Name, req.TableName)
	if err != nil {
		return nil, Identifier{}, nil, err
	}
	if strings.HasPrefix(tableName, reservedTablePrefix) {
		return nil, Identifier{}, nil, dynaform.NewInvalidNameError("tableName", fmt.Sprintf("table names starting with %q are reserved", reservedTablePrefix))
	}
	if reservedTableNames.Contains(tableName) {
		return nil, Identifier{}, nil, dynaform.NewInvalidNameError("tableName", fmt.Sprintf("table name %q is reserved", tableName))
	}

	now := cm.now()
	collection := &dynaform.Collection{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		TableName:    tableName,
		Status:       dynaform.CollectionStatusActive,
		SystemConfig: req.SystemConfig,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for i := range req.Fields {
		field, err := cm.buildField(collection, &req.Fields[i])
		if err != nil {
			return nil, Identifier{}, nil, err
		}
		collection.Fields = append(collection.Fields, field)
	}
	for _, f := range systemFields(req.SystemConfig, len(collection.Fields)) {
		f.ID = uuid.Must(uuid.NewV7())
		f.CollectionID = collection.ID
		f.CreatedAt = now
		f.UpdatedAt = now
		collection.Fields = append(collection.Fields, f)
	}

	table, err := tableIdentifier(collection)
	if err != nil {
		return nil, Identifier{}, nil, dynaform.NewInvalidNameError("tableName", err.Error())
	}
	columns, err := columnSpecsFromFields(collection.Fields)
	if err != nil {
		return nil, Identifier{}, nil, dynaform.NewInvalidNameError("dbColumn", err.Error())
	}
	stmts, err := cm.generator.ProvisionSQL(table, columns, collection.SystemConfig)
	if err != nil {
		return nil, Identifier{}, nil, dynaform.NewInternalError("failed to render collection DDL", err)
	}
	return collection, table, stmts, nil
}

// PlanCollection validates req and returns the collection it would create
// together with the provisioning DDL. Nothing is executed.
func PlanCollection(registry *FieldTypeRegistry, req *dynaform.CreateCollectionRequest) (*dynaform.Collection, []string, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, nil, err
	}
	cm := newCollectionManager(nil, nil, registry, nil)
	collection, _, stmts, err := cm.planCollection(req)
	if err != nil {
		return nil, nil, err
	}
	return collection, stmts, nil
}

func (cm *collectionManager) CreateCollection(ctx context.Context, req *dynaform.CreateCollectionRequest) (*dynaform.Collection, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	existing, err := cm.store.GetCollectionByName(ctx, req.Name)
	if err != nil {
		return nil, queryFailed(err)
	}
	if existing != nil {
		return nil, dynaform.NewCollectionExistsError(req.Name)
	}

	collection, table, stmts, err := cm.planCollection(req)
	if err != nil {
		return nil, err
	}

	// the create-table compensation drops the table, so it must not adopt one
	// this collection does not own
	exists, err := cm.tableExists(ctx, table)
	if err != nil {
		return nil, queryFailed(err)
	}
	if exists {
		return nil, dynaform.NewCollectionExistsError(req.Name).
			WithDetail("tableName", collection.TableName)
	}

	// metadata first, then the table, trigger and indexes
	s := newSaga("create_collection")
	if err := s.Step(ctx, SagaMetadataWritten, "insert collection metadata",
		func(ctx context.Context) error {
			if err := cm.store.InsertCollection(ctx, collection); err != nil {
				if isUniqueViolation(err) {
					return dynaform.NewCollectionExistsError(collection.Name).WithCause(err)
				}
				return queryFailed(err)
			}
			return nil
		},
		func(ctx context.Context) error { return cm.store.DeleteCollection(ctx, collection.ID) },
	); err != nil {
		return nil, err
	}

	if err := s.Step(ctx, SagaDDLApplied, "create table",
		func(ctx context.Context) error { return cm.execDDL(ctx, stmts[0]) },
		func(ctx context.Context) error { return cm.executor.ExecDDL(ctx, cm.generator.DropTableSQL(table)) },
	); err != nil {
		return nil, err
	}

	for _, stmt := range stmts[1:] {
		if err := s.Step(ctx, SagaDDLApplied, "provision table", func(ctx context.Context) error { return cm.execDDL(ctx, stmt) }, nil); err != nil {
			return nil, err
		}
	}
	s.Commit(ctx)

	zap.S().Infow("collection created", "collection", collection.Name, "table", collection.TableName, "fields", len(collection.Fields))
	notify(ctx, cm.notifier, dynaform.EventCollectionCreated, map[string]any{
		"collectionId": collection.ID.String(),
		"collection":   collection.Name,
		"displayName":  collection.DisplayName,
		"tableName":    collection.TableName,
	})
	return collection, nil
}

func (cm *collectionManager) tableExists(ctx context.Context, table Identifier) (bool, error) {
	rows, err := cm.executor.Query(ctx, tableExistsSQL, table.Quoted())
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	exists, _ := rows[0]["exists"].(bool)
	return exists, nil
}

func (cm *collectionManager) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	collection, err := cm.getCollection(ctx, id)
	if err != nil {
		return err
	}
	table, err := tableIdentifier(collection)
	if err != nil {
		return dynaform.NewInternalError("stored table name is not a valid identifier", err)
	}

	// the table goes first; if the metadata delete fails the table is rebuilt
	// (empty) so metadata never describes a missing table
	s := newSaga("delete_collection")
	if err := s.Step(ctx, SagaDDLApplied, "drop table",
		func(ctx context.Context) error { return cm.execDDL(ctx, cm.generator.DropTableSQL(table)) },
		func(ctx context.Context) error { return cm.reprovision(ctx, collection, table) },
	); err != nil {
		return err
	}
	if err := s.Step(ctx, SagaMetadataWritten, "delete collection metadata",
		func(ctx context.Context) error {
			if err := cm.store.DeleteCollection(ctx, collection.ID); err != nil {
				return queryFailed(err)
			}
			return nil
		}, nil,
	); err != nil {
		return err
	}
	s.Commit(ctx)

	zap.S().Infow("collection deleted", "collection", collection.Name, "table", collection.TableName)
	notify(ctx, cm.notifier, dynaform.EventCollectionDeleted, map[string]any{
		"collectionId": collection.ID.String(),
		"collection":   collection.Name,
		"tableName":    collection.TableName,
	})
	return nil
}

func (cm *collectionManager) reprovision(ctx context.Context, collection *dynaform.Collection, table Identifier) error {
	columns, err := columnSpecsFromFields(collection.Fields)
	if err != nil {
		return err
	}
	stmts, err := cm.generator.ProvisionSQL(table, columns, collection.SystemConfig)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := cm.executor.ExecDDL(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (cm *collectionManager) SetCollectionStatus(ctx context.Context, id uuid.UUID, status dynaform.CollectionStatus) (*dynaform.Collection, error) {
	if !status.Valid() {
		return nil, dynaform.NewValidationError("status", fmt.Sprintf("unknown collection status %q", status))
	}
	collection, err := cm.getCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if collection.Status == status {
		return collection, nil
	}
	if err := cm.store.UpdateCollectionStatus(ctx, id, status); err != nil {
		return nil, queryFailed(err)
	}
	collection.Status = status
	collection.UpdatedAt = cm.now()
	return collection, nil
}

func (cm *collectionManager) getCollection(ctx context.Context, id uuid.UUID) (*dynaform.Collection, error) {
	collection, err := cm.store.GetCollection(ctx, id)
	if err != nil {
		return nil, queryFailed(err)
	}
	if collection == nil {
		return nil, dynaform.NewCollectionNotFoundError(id.String())
	}
	return collection, nil
}

func (cm *collectionManager) GetCollection(ctx context.Context, id uuid.UUID) (*dynaform.Collection, error) {
	return cm.getCollection(ctx, id)
}

func (cm *collectionManager) GetCollectionByName(ctx context.Context, name string) (*dynaform.Collection, error) {
	collection, err := cm.store.GetCollectionByName(ctx, name)
	if err != nil {
		return nil, queryFailed(err)
	}
	if collection == nil {
		return nil, dynaform.NewCollectionNotFoundError(name)
	}
	return collection, nil
}

func (cm *collectionManager) ListCollections(ctx context.Context) ([]*dynaform.Collection, error) {
	collections, err := cm.store.ListCollections(ctx)
	if err != nil {
		return nil, queryFailed(err)
	}
	if collections == nil {
		collections = []*dynaform.Collection{}
	}
	return collections, nil
}

func (cm *collectionManager) AddRelation(ctx context.Context, req *dynaform.AddRelationRequest) (*dynaform.Relation, error) {
	if req == nil {
		return nil, dynaform.NewValidationError("relation", "request cannot be nil")
	}
	switch req.RelationType {
	case dynaform.RelationOneToOne, dynaform.RelationOneToMany, dynaform.RelationManyToMany:
	default:
		return nil, dynaform.NewValidationError("relationType", fmt.Sprintf("unknown relation type %q", req.RelationType))
	}
	onDelete := req.OnDelete
	switch onDelete {
	case "":
		onDelete = dynaform.OnDeleteNoAction
	case dynaform.OnDeleteCascade, dynaform.OnDeleteSetNull, dynaform.OnDeleteRestrict, dynaform.OnDeleteNoAction:
	default:
		return nil, dynaform.NewValidationError("onDelete", fmt.Sprintf("unknown onDelete policy %q", req.OnDelete))
	}

	collection, err := cm.getCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if _, err := cm.getCollection(ctx, req.RelatedCollectionID); err != nil {
		return nil, err
	}

	relation := &dynaform.Relation{
		ID:                  uuid.Must(uuid.NewV7()),
		CollectionID:        collection.ID,
		RelatedCollectionID: req.RelatedCollectionID,
		RelationType:        req.RelationType,
		OnDelete:            onDelete,
		CreatedAt:           cm.now(),
	}
	if err := cm.store.InsertRelation(ctx, relation); err != nil {
		return nil, queryFailed(err)
	}
	return relation, nil
}
