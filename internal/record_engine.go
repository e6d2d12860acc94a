package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/dynaform"
	"go.uber.org/zap"
)

type recordEngine struct {
	store           MetadataStore
	executor        DataStoreExecutor
	notifier        dynaform.Notifier
	defaultPageSize int
	maxPageSize     int
}

// NewRecordEngine creates a RecordEngine. Collection metadata is re-read on
// every call; nothing is cached. notifier may be nil.
func NewRecordEngine(store MetadataStore, executor DataStoreExecutor, notifier dynaform.Notifier, cfg dynaform.QueryConfig) dynaform.RecordEngine {
	return newRecordEngine(store, executor, notifier, cfg)
}

func newRecordEngine(store MetadataStore, executor DataStoreExecutor, notifier dynaform.Notifier, cfg dynaform.QueryConfig) *recordEngine {
	defaults := dynaform.DefaultConfig().Query
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaults.DefaultPageSize
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = max(defaults.MaxPageSize, cfg.DefaultPageSize)
	}
	return &recordEngine{
		store:           store,
		executor:        executor,
		notifier:        notifier,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
}

// recordColumn maps one selected column to its key in Record.Data.
type recordColumn struct {
	key    string
	column Identifier
}

// recordLayout is the trusted column map of a collection table, derived from metadata.
type recordLayout struct {
	collection *dynaform.Collection
	table      Identifier
	columns    []recordColumn
}

func newRecordLayout(c *dynaform.Collection) (*recordLayout, error) {
	table, err := tableIdentifier(c)
	if err != nil {
		return nil, err
	}
	layout := &recordLayout{collection: c, table: table}
	seen := NewSet[string]()
	add := func(key string, column Identifier) {
		if !seen.Add(column.Name()) {
			return
		}
		layout.columns = append(layout.columns, recordColumn{key: key, column: column})
	}

	add("id", systemColumnID)
	for _, f := range c.Fields {
		column, err := columnIdentifier(f)
		if err != nil {
			return nil, err
		}
		add(f.Name, column)
	}
	if c.SystemConfig.Timestamps() {
		add("created_at", systemColumnCreatedAt)
		add("updated_at", systemColumnUpdatedAt)
	}
	return layout, nil
}

func (l *recordLayout) selectList() string {
	ids := make([]Identifier, len(l.columns))
	for i, c := range l.columns {
		ids[i] = c.column
	}
	return quoteAll(ids)
}

func (l *recordLayout) orderBy() string {
	if l.collection.SystemConfig.Timestamps() {
		return fmt.Sprintf("%s DESC, %s", systemColumnCreatedAt.Quoted(), systemColumnID.Quoted())
	}
	return systemColumnID.Quoted()
}

func (l *recordLayout) toRecord(row map[string]any) (*dynaform.Record, error) {
	id, err := recordID(row[systemColumnID.Name()])
	if err != nil {
		return nil, err
	}
	data := make(map[string]any, len(l.columns)-1)
	for _, c := range l.columns[1:] {
		data[c.key] = normalizeColumnValue(row[c.column.Name()])
	}
	return &dynaform.Record{Collection: l.collection.Name, ID: id, Data: data}, nil
}

func (e *recordEngine) layout(ctx context.Context, name string) (*recordLayout, error) {
	c, err := e.store.GetCollectionByName(ctx, name)
	if err != nil {
		return nil, queryFailed(err)
	}
	if c == nil {
		return nil, dynaform.NewCollectionNotFoundError(name)
	}
	layout, err := newRecordLayout(c)
	if err != nil {
		return nil, dynaform.NewInternalError("collection metadata holds an invalid identifier", err).WithCollection(name)
	}
	return layout, nil
}

// writableLayout resolves the collection and rejects writes to archived ones.
func (e *recordEngine) writableLayout(ctx context.Context, name string) (*recordLayout, error) {
	layout, err := e.layout(ctx, name)
	if err != nil {
		return nil, err
	}
	if layout.collection.Status == dynaform.CollectionStatusArchived {
		return nil, dynaform.NewValidationError("collection", fmt.Sprintf("collection %s is archived and read-only", name)).WithCollection(name)
	}
	return layout, nil
}

func (e *recordEngine) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = e.defaultPageSize
	}
	if limit > e.maxPageSize {
		limit = e.maxPageSize
	}
	return page, limit
}

// List returns one page of records, newest first. A failing data query
// yields an empty page instead of an error.
func (e *recordEngine) List(ctx context.Context, collection string, page, limit int) (*dynaform.ListResult, error) {
	page, limit = e.normalizePage(page, limit)
	layout, err := e.layout(ctx, collection)
	if err != nil {
		EmitRecordOperation(ctx, collection, "list", true)
		return nil, err
	}

	empty := &dynaform.ListResult{Records: []*dynaform.Record{}, Page: page, Limit: limit}
	countSQL := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", layout.table.Quoted())
	countRows, err := e.executor.Query(ctx, countSQL)
	if err != nil {
		zap.S().Warnw("record count failed, returning empty page", "collection", collection, "error", err)
		EmitRecordOperation(ctx, collection, "list", true)
		return empty, nil
	}
	total := countFrom(countRows)

	listSQL := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT $1 OFFSET $2",
		layout.selectList(), layout.table.Quoted(), layout.orderBy())
	rows, err := e.executor.Query(ctx, listSQL, limit, (page-1)*limit)
	if err != nil {
		zap.S().Warnw("record list failed, returning empty page", "collection", collection, "error", err)
		EmitRecordOperation(ctx, collection, "list", true)
		return empty, nil
	}

	records := make([]*dynaform.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := layout.toRecord(row)
		if err != nil {
			zap.S().Warnw("skipping record with unreadable id", "collection", collection, "error", err)
			continue
		}
		records = append(records, rec)
	}
	EmitRecordOperation(ctx, collection, "list", false)
	return &dynaform.ListResult{
		Records:    records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (e *recordEngine) Get(ctx context.Context, collection string, id uuid.UUID) (rec *dynaform.Record, err error) {
	defer func() { EmitRecordOperation(ctx, collection, "get", err != nil) }()
	layout, err := e.layout(ctx, collection)
	if err != nil {
		return nil, err
	}
	return e.fetch(ctx, layout, id)
}

func (e *recordEngine) fetch(ctx context.Context, layout *recordLayout, id uuid.UUID) (*dynaform.Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		layout.selectList(), layout.table.Quoted(), systemColumnID.Quoted())
	rows, err := e.executor.Query(ctx, sql, id)
	if err != nil {
		return nil, queryFailed(err).WithCollection(layout.collection.Name)
	}
	if len(rows) == 0 {
		return nil, dynaform.NewRecordNotFoundError(layout.collection.Name, id.String())
	}
	rec, err := layout.toRecord(rows[0])
	if err != nil {
		return nil, dynaform.NewInternalError("failed to read record id", err).WithCollection(layout.collection.Name)
	}
	return rec, nil
}

// assignment is one validated column value of a write.
type assignment struct {
	field  *dynaform.Field
	column Identifier
	value  any
}

// validatePayload checks payload against the fields of the collection and
// returns the column assignments in field order. Auto-managed keys are
// dropped and system fields are accepted only where their write mode allows;
// the first violation is returned. When partial is set, absent fields are
// skipped instead of failing their required check.
func validatePayload(c *dynaform.Collection, payload map[string]any, partial bool) ([]assignment, error) {
	values := make(map[string]any, len(payload))
	for k, v := range payload {
		values[k] = v
	}
	for _, k := range autoManagedKeys {
		delete(values, k)
	}

	var out []assignment
	for _, f := range c.Fields {
		required := f.Required
		var allowed []string
		if f.System {
			def, ok := systemFieldDefByName(f.Name)
			if !ok || (partial && !def.writableOnUpdate()) || (!partial && !def.writableOnCreate()) {
				continue
			}
			// omitted system columns take their database default
			required = false
			allowed = def.allowed
		}

		value, present := values[f.Name]
		delete(values, f.Name)
		if !present && partial {
			continue
		}
		if !present || (isEmptyValue(value) && !partial) {
			if required {
				return nil, dynaform.NewRequiredFieldError(f.Name).WithCollection(c.Name)
			}
			continue
		}
		if res := ValidateValue(value, f.Type, f.Rules.WithRequired(required)); !res.Valid {
			return nil, dynaform.NewValidationError(f.Name, res.Error).WithCollection(c.Name)
		}
		if s, _ := value.(string); len(allowed) > 0 && !slices.Contains(allowed, s) {
			return nil, dynaform.NewValidationError(f.Name, "must be one of: "+strings.Join(allowed, ", ")).WithCollection(c.Name)
		}
		column, err := columnIdentifier(f)
		if err != nil {
			return nil, dynaform.NewInternalError("collection metadata holds an invalid identifier", err).WithCollection(c.Name)
		}
		out = append(out, assignment{field: f, column: column, value: columnValue(f.Type, value)})
	}

	if len(values) > 0 {
		zap.S().Debugw("ignoring payload keys without a writable column", "collection", c.Name, "keys", sortedKeys(values))
	}
	return out, nil
}

func (e *recordEngine) Create(ctx context.Context, collection string, payload map[string]any) (rec *dynaform.Record, err error) {
	defer func() { EmitRecordOperation(ctx, collection, "create", err != nil) }()
	layout, err := e.writableLayout(ctx, collection)
	if err != nil {
		return nil, err
	}
	c := layout.collection
	assignments, err := validatePayload(c, payload, false)
	if err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7())
	columns := []Identifier{systemColumnID}
	values := []string{"$1"}
	args := []any{id}
	for _, a := range assignments {
		args = append(args, a.value)
		columns = append(columns, a.column)
		values = append(values, fmt.Sprintf("$%d", len(args)))
	}
	if actor, ok := actorID(ctx); ok && c.SystemConfig.HasCreatedBy {
		args = append(args, actor)
		columns = append(columns, systemColumnCreatedBy)
		values = append(values, fmt.Sprintf("$%d", len(args)))
	}
	if c.SystemConfig.Timestamps() {
		columns = append(columns, systemColumnCreatedAt, systemColumnUpdatedAt)
		values = append(values, "NOW()", "NOW()")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		layout.table.Quoted(), quoteAll(columns), strings.Join(values, ", "), layout.selectList())
	rows, err := e.executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, queryFailed(err).WithCollection(c.Name)
	}
	if len(rows) == 0 {
		return nil, dynaform.NewInternalError("insert returned no row", nil).WithCollection(c.Name)
	}
	rec, err = layout.toRecord(rows[0])
	if err != nil {
		return nil, dynaform.NewInternalError("failed to read record id", err).WithCollection(c.Name)
	}

	zap.S().Infow("record created", "collection", c.Name, "id", rec.ID)
	notify(ctx, e.notifier, dynaform.EventRecordCreated, map[string]any{
		"collection": c.Name,
		"recordId":   rec.ID.String(),
		"title":      recordTitle(rec),
	})
	return rec, nil
}

func (e *recordEngine) Update(ctx context.Context, collection string, id uuid.UUID, payload map[string]any) (rec *dynaform.Record, err error) {
	defer func() { EmitRecordOperation(ctx, collection, "update", err != nil) }()
	layout, err := e.writableLayout(ctx, collection)
	if err != nil {
		return nil, err
	}
	c := layout.collection
	assignments, err := validatePayload(c, payload, true)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	changed := make([]string, 0, len(assignments))
	for _, a := range assignments {
		args = append(args, a.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.column.Quoted(), len(args)))
		changed = append(changed, a.field.Name)
	}
	if actor, ok := actorID(ctx); ok && c.SystemConfig.HasUpdatedBy {
		args = append(args, actor)
		sets = append(sets, fmt.Sprintf("%s = $%d", mustIdentifier("updated_by").Quoted(), len(args)))
	}
	if c.SystemConfig.HasVersioning {
		version := mustIdentifier("version").Quoted()
		sets = append(sets, fmt.Sprintf("%s = %s + 1", version, version))
	}
	if c.SystemConfig.Timestamps() {
		sets = append(sets, systemColumnUpdatedAt.Quoted()+" = NOW()")
	}
	if len(sets) == 0 {
		return e.fetch(ctx, layout, id)
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		layout.table.Quoted(), strings.Join(sets, ", "), systemColumnID.Quoted(), len(args), layout.selectList())
	rows, err := e.executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, queryFailed(err).WithCollection(c.Name)
	}
	if len(rows) == 0 {
		return nil, dynaform.NewRecordNotFoundError(c.Name, id.String())
	}
	rec, err = layout.toRecord(rows[0])
	if err != nil {
		return nil, dynaform.NewInternalError("failed to read record id", err).WithCollection(c.Name)
	}

	zap.S().Infow("record updated", "collection", c.Name, "id", rec.ID, "fields", changed)
	notify(ctx, e.notifier, dynaform.EventRecordUpdated, map[string]any{
		"collection": c.Name,
		"recordId":   rec.ID.String(),
		"title":      recordTitle(rec),
		"summary":    "Updated fields: " + strings.Join(changed, ", "),
	})
	return rec, nil
}

func (e *recordEngine) Delete(ctx context.Context, collection string, id uuid.UUID) (err error) {
	defer func() { EmitRecordOperation(ctx, collection, "delete", err != nil) }()
	layout, err := e.writableLayout(ctx, collection)
	if err != nil {
		return err
	}
	existing, err := e.fetch(ctx, layout, id)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", layout.table.Quoted(), systemColumnID.Quoted())
	affected, err := e.executor.Exec(ctx, sql, id)
	if err != nil {
		return queryFailed(err).WithCollection(layout.collection.Name)
	}
	if affected == 0 {
		return dynaform.NewRecordNotFoundError(layout.collection.Name, id.String())
	}

	zap.S().Infow("record deleted", "collection", layout.collection.Name, "id", id)
	notify(ctx, e.notifier, dynaform.EventRecordDeleted, map[string]any{
		"collection": layout.collection.Name,
		"recordId":   id.String(),
		"title":      recordTitle(existing),
	})
	return nil
}

// actorID returns the acting user as a UUID when the context carries one.
func actorID(ctx context.Context) (uuid.UUID, bool) {
	actor := dynaform.ActorFromContext(ctx)
	if actor == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(actor)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// columnValue converts a validated payload value into the form bound for its column.
func columnValue(t dynaform.FieldType, value any) any {
	if value == nil {
		return nil
	}
	switch t.Normalize() {
	case dynaform.FieldTypeInteger, dynaform.FieldTypeBigInteger, dynaform.FieldTypeAutoIncrement,
		dynaform.FieldTypeSerial, dynaform.FieldTypeRadio, dynaform.FieldTypeRating:
		if n, ok := asInteger(value); ok {
			return n
		}
	case dynaform.FieldTypeDecimal, dynaform.FieldTypeFloat, dynaform.FieldTypeCurrency, dynaform.FieldTypePercentage:
		if n, ok := asNumber(value); ok {
			return n
		}
	case dynaform.FieldTypeJSON, dynaform.FieldTypeJSONB, dynaform.FieldTypeMultiSelect:
		switch v := value.(type) {
		case string:
			return v
		case []byte:
			return string(v)
		}
		if raw, err := json.Marshal(value); err == nil {
			return string(raw)
		}
	}
	return value
}

func recordTitle(rec *dynaform.Record) string {
	if rec == nil {
		return ""
	}
	for _, key := range []string{"title", "name"} {
		if s, ok := rec.Data[key].(string); ok && s != "" {
			return s
		}
	}
	return rec.ID.String()
}

func countFrom(rows []map[string]any) int64 {
	if len(rows) == 0 {
		return 0
	}
	for _, v := range rows[0] {
		if n, ok := asInteger(v); ok {
			return n
		}
	}
	return 0
}

func sortedKeys(m map[string]any) []string {
	keys := MapKeys(m)
	sort.Strings(keys)
	return keys
}
