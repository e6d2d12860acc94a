package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/dynaform"
)

const (
	collectionsTable = "dynaform_collections"
	fieldsTable      = "dynaform_fields"
	relationsTable   = "dynaform_relations"

	collectionColumns = "id, name, display_name, description, table_name, status, system_config, created_at, updated_at"
	fieldColumns      = "id, collection_id, name, db_column, type, required, indexed, is_unique, searchable, system, rules, position, created_at, updated_at"
	relationColumns   = "id, collection_id, related_collection_id, relation_type, on_delete, created_at"

	pgUniqueViolation = "23505"
)

type metadataPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresMetadataStore keeps collection metadata in the tables created by MigrateMetadata.
type PostgresMetadataStore struct {
	pool metadataPool
}

func NewPostgresMetadataStore(pool metadataPool) *PostgresMetadataStore {
	return &PostgresMetadataStore{pool: pool}
}

var _ MetadataStore = (*PostgresMetadataStore)(nil)

// isUniqueViolation reports whether err is a Postgres unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// marshalRules encodes rules for the JSONB column; nil rules are stored as NULL.
func marshalRules(rules *dynaform.ValidationRules) (any, error) {
	if rules == nil {
		return nil, nil
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *PostgresMetadataStore) InsertCollection(ctx context.Context, c *dynaform.Collection) error {
	if c == nil {
		return fmt.Errorf("collection cannot be nil")
	}
	systemConfig, err := json.Marshal(c.SystemConfig)
	if err != nil {
		return fmt.Errorf("marshal system config: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, collectionsTable, collectionColumns)
	if _, err := tx.Exec(ctx, query,
		c.ID, c.Name, c.DisplayName, c.Description, c.TableName, string(c.Status), string(systemConfig), c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}

	for _, f := range c.Fields {
		if err := insertField(ctx, tx, f); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertField(ctx context.Context, db execer, f *dynaform.Field) error {
	rules, err := marshalRules(f.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules for field %s: %w", f.Name, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, fieldsTable, fieldColumns)
	if _, err := db.Exec(ctx, query,
		f.ID, f.CollectionID, f.Name, f.DBColumn, string(f.Type), f.Required, f.Indexed, f.Unique, f.Searchable, f.System,
		rules, f.Position, f.CreatedAt, f.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert field %s: %w", f.Name, err)
	}
	return nil
}

func scanCollection(row pgx.Row) (*dynaform.Collection, error) {
	var (
		c            dynaform.Collection
		status       string
		systemConfig []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Description, &c.TableName, &status, &systemConfig, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = dynaform.CollectionStatus(status)
	if len(systemConfig) > 0 {
		if err := json.Unmarshal(systemConfig, &c.SystemConfig); err != nil {
			return nil, fmt.Errorf("decode system config of %s: %w", c.Name, err)
		}
	}
	return &c, nil
}

func (s *PostgresMetadataStore) getCollectionWhere(ctx context.Context, where string, arg any) (*dynaform.Collection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, collectionColumns, collectionsTable, where)
	c, err := scanCollection(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if err := s.loadChildren(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresMetadataStore) loadChildren(ctx context.Context, c *dynaform.Collection) error {
	fields, err := s.ListFields(ctx, c.ID)
	if err != nil {
		return err
	}
	relations, err := s.ListRelations(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Fields = fields
	c.Relations = relations
	return nil
}

func (s *PostgresMetadataStore) GetCollection(ctx context.Context, id uuid.UUID) (*dynaform.Collection, error) {
	return s.getCollectionWhere(ctx, "id", id)
}

func (s *PostgresMetadataStore) GetCollectionByName(ctx context.Context, name string) (*dynaform.Collection, error) {
	return s.getCollectionWhere(ctx, "name", name)
}

func (s *PostgresMetadataStore) ListCollections(ctx context.Context) ([]*dynaform.Collection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, collectionColumns, collectionsTable)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	collections, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*dynaform.Collection, error) {
		return scanCollection(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan collections: %w", err)
	}

	for _, c := range collections {
		if err := s.loadChildren(ctx, c); err != nil {
			return nil, err
		}
	}
	return collections, nil
}

func (s *PostgresMetadataStore) UpdateCollectionStatus(ctx context.Context, id uuid.UUID, status dynaform.CollectionStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = NOW() WHERE id = $1`, collectionsTable)
	if _, err := s.pool.Exec(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("update collection status: %w", err)
	}
	return nil
}

func (s *PostgresMetadataStore) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, collectionsTable)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

func (s *PostgresMetadataStore) InsertField(ctx context.Context, f *dynaform.Field) error {
	if f == nil {
		return fmt.Errorf("field cannot be nil")
	}
	return insertField(ctx, s.pool, f)
}

func scanField(row pgx.Row) (*dynaform.Field, error) {
	var (
		f         dynaform.Field
		fieldType string
		rules     []byte
	)
	if err := row.Scan(&f.ID, &f.CollectionID, &f.Name, &f.DBColumn, &fieldType, &f.Required, &f.Indexed, &f.Unique,
		&f.Searchable, &f.System, &rules, &f.Position, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Type = dynaform.FieldType(fieldType)
	if len(rules) > 0 {
		f.Rules = &dynaform.ValidationRules{}
		if err := json.Unmarshal(rules, f.Rules); err != nil {
			return nil, fmt.Errorf("decode rules of field %s: %w", f.Name, err)
		}
	}
	return &f, nil
}

func (s *PostgresMetadataStore) GetField(ctx context.Context, id uuid.UUID) (*dynaform.Field, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, fieldColumns, fieldsTable)
	f, err := scanField(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get field: %w", err)
	}
	return f, nil
}

func (s *PostgresMetadataStore) ListFields(ctx context.Context, collectionID uuid.UUID) ([]*dynaform.Field, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE collection_id = $1 ORDER BY position, created_at`, fieldColumns, fieldsTable)
	rows, err := s.pool.Query(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	fields, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*dynaform.Field, error) {
		return scanField(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan fields: %w", err)
	}
	return fields, nil
}

func (s *PostgresMetadataStore) UpdateField(ctx context.Context, f *dynaform.Field) error {
	if f == nil {
		return fmt.Errorf("field cannot be nil")
	}
	rules, err := marshalRules(f.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules for field %s: %w", f.Name, err)
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	query := fmt.Sprintf(`UPDATE %s SET type = $2, required = $3, rules = $4, updated_at = $5 WHERE id = $1`, fieldsTable)
	if _, err := s.pool.Exec(ctx, query, f.ID, string(f.Type), f.Required, rules, f.UpdatedAt); err != nil {
		return fmt.Errorf("update field %s: %w", f.Name, err)
	}
	return nil
}

func (s *PostgresMetadataStore) DeleteField(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, fieldsTable)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	return nil
}

func (s *PostgresMetadataStore) InsertRelation(ctx context.Context, r *dynaform.Relation) error {
	if r == nil {
		return fmt.Errorf("relation cannot be nil")
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)`, relationsTable, relationColumns)
	if _, err := s.pool.Exec(ctx, query,
		r.ID, r.CollectionID, r.RelatedCollectionID, string(r.RelationType), string(r.OnDelete), r.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}
	return nil
}

func (s *PostgresMetadataStore) ListRelations(ctx context.Context, collectionID uuid.UUID) ([]*dynaform.Relation, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE collection_id = $1 ORDER BY created_at`, relationColumns, relationsTable)
	rows, err := s.pool.Query(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	relations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*dynaform.Relation, error) {
		var (
			r            dynaform.Relation
			relationType string
			onDelete     string
		)
		if err := row.Scan(&r.ID, &r.CollectionID, &r.RelatedCollectionID, &relationType, &onDelete, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RelationType = dynaform.RelationType(relationType)
		r.OnDelete = dynaform.OnDeletePolicy(onDelete)
		return &r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan relations: %w", err)
	}
	return relations, nil
}
