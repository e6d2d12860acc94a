package internal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/dynaform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetadataStore struct {
	mu          sync.Mutex
	collections map[uuid.UUID]*dynaform.Collection
	fields      map[uuid.UUID]*dynaform.Field
	relations   []*dynaform.Relation
	failOn      map[string]error
}

func newMockMetadataStore() *mockMetadataStore {
	return &mockMetadataStore{
		collections: make(map[uuid.UUID]*dynaform.Collection),
		fields:      make(map[uuid.UUID]*dynaform.Field),
		failOn:      make(map[string]error),
	}
}

func (m *mockMetadataStore) fail(method string) error {
	return m.failOn[method]
}

func (m *mockMetadataStore) snapshot(c *dynaform.Collection) *dynaform.Collection {
	out := *c
	out.Fields = nil
	for _, f := range m.fields {
		if f.CollectionID == c.ID {
			copied := *f
			out.Fields = append(out.Fields, &copied)
		}
	}
	sort.Slice(out.Fields, func(i, j int) bool { return out.Fields[i].Position < out.Fields[j].Position })
	out.Relations = nil
	for _, r := range m.relations {
		if r.CollectionID == c.ID {
			out.Relations = append(out.Relations, r)
		}
	}
	return &out
}

func (m *mockMetadataStore) InsertCollection(ctx context.Context, c *dynaform.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertCollection"); err != nil {
		return err
	}
	for _, existing := range m.collections {
		if existing.Name == c.Name || existing.TableName == c.TableName {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	stored := *c
	stored.Fields = nil
	m.collections[c.ID] = &stored
	for _, f := range c.Fields {
		copied := *f
		m.fields[f.ID] = &copied
	}
	return nil
}

func (m *mockMetadataStore) GetCollection(ctx context.Context, id uuid.UUID) (*dynaform.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetCollection"); err != nil {
		return nil, err
	}
	c, ok := m.collections[id]
	if !ok {
		return nil, nil
	}
	return m.snapshot(c), nil
}

func (m *mockMetadataStore) GetCollectionByName(ctx context.Context, name string) (*dynaform.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetCollectionByName"); err != nil {
		return nil, err
	}
	for _, c := range m.collections {
		if c.Name == name {
			return m.snapshot(c), nil
		}
	}
	return nil, nil
}

func (m *mockMetadataStore) ListCollections(ctx context.Context) ([]*dynaform.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListCollections"); err != nil {
		return nil, err
	}
	var out []*dynaform.Collection
	for _, c := range m.collections {
		out = append(out, m.snapshot(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockMetadataStore) UpdateCollectionStatus(ctx context.Context, id uuid.UUID, status dynaform.CollectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateCollectionStatus"); err != nil {
		return err
	}
	if c, ok := m.collections[id]; ok {
		c.Status = status
	}
	return nil
}

func (m *mockMetadataStore) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteCollection"); err != nil {
		return err
	}
	delete(m.collections, id)
	for fid, f := range m.fields {
		if f.CollectionID == id {
			delete(m.fields, fid)
		}
	}
	return nil
}

func (m *mockMetadataStore) InsertField(ctx context.Context, f *dynaform.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertField"); err != nil {
		return err
	}
	for _, existing := range m.fields {
		if existing.CollectionID == f.CollectionID && existing.Name == f.Name {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	copied := *f
	m.fields[f.ID] = &copied
	return nil
}

func (m *mockMetadataStore) GetField(ctx context.Context, id uuid.UUID) (*dynaform.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetField"); err != nil {
		return nil, err
	}
	f, ok := m.fields[id]
	if !ok {
		return nil, nil
	}
	copied := *f
	return &copied, nil
}

func (m *mockMetadataStore) ListFields(ctx context.Context, collectionID uuid.UUID) ([]*dynaform.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collectionID]
	if !ok {
		return nil, nil
	}
	return m.snapshot(c).Fields, nil
}

func (m *mockMetadataStore) UpdateField(ctx context.Context, f *dynaform.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateField"); err != nil {
		return err
	}
	copied := *f
	m.fields[f.ID] = &copied
	return nil
}

func (m *mockMetadataStore) DeleteField(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteField"); err != nil {
		return err
	}
	delete(m.fields, id)
	return nil
}

func (m *mockMetadataStore) InsertRelation(ctx context.Context, r *dynaform.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertRelation"); err != nil {
		return err
	}
	m.relations = append(m.relations, r)
	return nil
}

func (m *mockMetadataStore) ListRelations(ctx context.Context, collectionID uuid.UUID) ([]*dynaform.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dynaform.Relation
	for _, r := range m.relations {
		if r.CollectionID == collectionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// recordingExecutor records DDL and fails any statement containing failOn.
// Table lookups answer from existing, keyed by quoted table name.
type recordingExecutor struct {
	mu       sync.Mutex
	stmts    []string
	failOn   string
	existing map[string]bool
	queryErr error
}

func (e *recordingExecutor) ExecDDL(ctx context.Context, stmt string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stmts = append(e.stmts, stmt)
	if e.failOn != "" && strings.Contains(stmt, e.failOn) {
		return errors.New(`relation "posts" already exists`)
	}
	return nil
}

func (e *recordingExecutor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return 0, errors.New("not supported")
}

func (e *recordingExecutor) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	if sql != tableExistsSQL || len(args) != 1 {
		return nil, errors.New("not supported")
	}
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	name, _ := args[0].(string)
	return []map[string]any{{"exists": e.existing[name]}}, nil
}

func (e *recordingExecutor) statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.stmts))
	copy(out, e.stmts)
	return out
}

func (e *recordingExecutor) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stmts = nil
}

type recordedEvent struct {
	userID  string
	kind    dynaform.EventKind
	payload map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, kind dynaform.EventKind, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userID: userID, kind: kind, payload: payload})
	return n.err
}

func (n *recordingNotifier) kinds() []dynaform.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]dynaform.EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

func newTestCollectionManager() (*collectionManager, *mockMetadataStore, *recordingExecutor, *recordingNotifier) {
	store := newMockMetadataStore()
	exec := &recordingExecutor{}
	notifier := &recordingNotifier{}
	return newCollectionManager(store, exec, nil, notifier), store, exec, notifier
}

func createPosts(t *testing.T, cm *collectionManager) *dynaform.Collection {
	t.Helper()
	c, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.NoError(t, err)
	return c
}

func fieldByName(c *dynaform.Collection, name string) *dynaform.Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func TestCollectionManager_CreateCollectionDefaultConfig(t *testing.T) {
	cm, store, exec, notifier := newTestCollectionManager()
	ctx := dynaform.WithActor(context.Background(), "user-1")

	c, err := cm.CreateCollection(ctx, &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.NoError(t, err)

	assert.Equal(t, "posts", c.TableName)
	assert.Equal(t, dynaform.CollectionStatusActive, c.Status)
	require.Len(t, c.Fields, 2)
	assert.Equal(t, "created_at", c.Fields[0].Name)
	assert.Equal(t, "updated_at", c.Fields[1].Name)
	assert.True(t, c.Fields[0].System)

	stmts := exec.statements()
	require.Len(t, stmts, 5)
	assert.True(t, strings.HasPrefix(stmts[0], `CREATE TABLE IF NOT EXISTS "posts"`))
	assert.Contains(t, stmts[0], `"created_at" TIMESTAMPTZ NOT NULL DEFAULT NOW()`)
	assert.Contains(t, stmts[0], `"updated_at" TIMESTAMPTZ NOT NULL DEFAULT NOW()`)
	assert.NotContains(t, stmts[0], "deleted_at")
	assert.Contains(t, stmts[2], `DROP TRIGGER IF EXISTS "posts_update_updated_at"`)
	assert.Contains(t, stmts[4], `"idx_posts_created_at"`)

	stored, err := store.GetCollectionByName(ctx, "posts")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Fields, 2)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, dynaform.EventCollectionCreated, notifier.events[0].kind)
	assert.Equal(t, "user-1", notifier.events[0].userID)
	assert.Equal(t, "posts", notifier.events[0].payload["collection"])
}

func TestCollectionManager_CreateCollectionWithFields(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()

	c, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{
		Name:         "BlogPost",
		DisplayName:  "Blog posts",
		SystemConfig: dynaform.SystemFieldConfig{HasSlug: true},
		Fields: []dynaform.AddFieldRequest{
			{Name: "title", Type: "string", Required: true, Searchable: true},
			{Name: "viewCount", Type: dynaform.FieldTypeInteger},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "blog_post", c.TableName)
	title := fieldByName(c, "title")
	require.NotNil(t, title)
	assert.Equal(t, dynaform.FieldTypeString, title.Type)
	assert.Equal(t, 0, title.Position)
	views := fieldByName(c, "viewCount")
	require.NotNil(t, views)
	assert.Equal(t, "view_count", views.DBColumn)
	require.NotNil(t, fieldByName(c, "slug"))

	stmts := exec.statements()
	assert.Contains(t, stmts[0], `"title" VARCHAR(255) NOT NULL`)
	assert.Contains(t, stmts[0], `"view_count" INTEGER`)
	assert.Contains(t, stmts[0], `"slug" VARCHAR(255)`)
	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, `CREATE INDEX IF NOT EXISTS "idx_blog_post_title"`)
	assert.Contains(t, joined, `CREATE UNIQUE INDEX IF NOT EXISTS "idx_blog_post_slug"`)
}

func TestCollectionManager_CreateCollectionValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *dynaform.CreateCollectionRequest
		code string
	}{
		{name: "nil request", req: nil, code: dynaform.ErrCodeValidationFailed},
		{name: "empty name", req: &dynaform.CreateCollectionRequest{DisplayName: "Posts"}, code: dynaform.ErrCodeValidationFailed},
		{name: "missing display name", req: &dynaform.CreateCollectionRequest{Name: "posts"}, code: dynaform.ErrCodeValidationFailed},
		{name: "name with spaces", req: &dynaform.CreateCollectionRequest{Name: "my posts", DisplayName: "Posts"}, code: dynaform.ErrCodeInvalidName},
		{name: "injection in table name", req: &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts", TableName: `posts"; DROP TABLE users; --`}, code: dynaform.ErrCodeInvalidName},
		{name: "reserved table prefix", req: &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts", TableName: "dynaform_fields"}, code: dynaform.ErrCodeInvalidName},
		{name: "unknown field type", req: &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts", Fields: []dynaform.AddFieldRequest{{Name: "title", Type: "HOLOGRAM"}}}, code: dynaform.ErrCodeUnknownFieldType},
		{name: "reserved column", req: &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts", Fields: []dynaform.AddFieldRequest{{Name: "createdAt", Type: dynaform.FieldTypeDateTime}}}, code: dynaform.ErrCodeInvalidName},
		{name: "duplicate field", req: &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts", Fields: []dynaform.AddFieldRequest{{Name: "title", Type: dynaform.FieldTypeString}, {Name: "title", Type: dynaform.FieldTypeText}}}, code: dynaform.ErrCodeFieldExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm, store, exec, notifier := newTestCollectionManager()
			_, err := cm.CreateCollection(context.Background(), tt.req)
			require.Error(t, err)

			var de *dynaform.DynaformError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.code, de.Code)
			assert.Empty(t, exec.statements())
			assert.Empty(t, store.collections)
			assert.Empty(t, notifier.events)
		})
	}
}

func TestCollectionManager_CreateCollectionTwiceConflicts(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	createPosts(t, cm)
	exec.reset()

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts again"})
	require.Error(t, err)
	assert.True(t, dynaform.IsConflict(err))
	assert.Empty(t, exec.statements())
	assert.Len(t, store.collections, 1)
}

func TestCollectionManager_CreateCollectionRaceMapsUniqueViolation(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	store.failOn["InsertCollection"] = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.Error(t, err)
	assert.True(t, dynaform.IsConflict(err))
	assert.Empty(t, exec.statements())
}

func TestCollectionManager_CreateCollectionDDLFailureRemovesMetadata(t *testing.T) {
	cm, store, exec, notifier := newTestCollectionManager()
	exec.failOn = "CREATE TABLE"

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.Error(t, err)
	assert.True(t, dynaform.IsSchemaExecution(err))
	assert.Contains(t, err.Error(), `relation "posts" already exists`)

	assert.Empty(t, store.collections)
	assert.Empty(t, store.fields)
	assert.Empty(t, notifier.events)
}

func TestCollectionManager_CreateCollectionIndexFailureDropsTable(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	exec.failOn = "CREATE INDEX"

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.Error(t, err)
	assert.True(t, dynaform.IsSchemaExecution(err))

	stmts := exec.statements()
	assert.Equal(t, `DROP TABLE IF EXISTS "posts" CASCADE`, stmts[len(stmts)-1])
	assert.Empty(t, store.collections)
}

func TestCollectionManager_CreateCollectionOverExistingTableConflicts(t *testing.T) {
	cm, store, exec, notifier := newTestCollectionManager()
	exec.existing = map[string]bool{`"legacy_orders"`: true}

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "legacyOrders", DisplayName: "Orders"})
	require.Error(t, err)
	assert.True(t, dynaform.IsConflict(err))

	var de *dynaform.DynaformError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "legacy_orders", de.Details["tableName"])
	assert.Empty(t, exec.statements())
	assert.Empty(t, store.collections)
	assert.Empty(t, notifier.events)
}

func TestCollectionManager_CreateCollectionTableLookupFailure(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	exec.queryErr = errors.New("connection reset by peer")

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.Error(t, err)
	assert.True(t, dynaform.IsSchemaExecution(err))
	assert.Empty(t, exec.statements())
	assert.Empty(t, store.collections)
}

func TestCollectionManager_CreateCollectionNeverDropsForeignTable(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	exec.existing = map[string]bool{`"goose_db_version"`: true}
	exec.failOn = "CREATE INDEX"

	for _, req := range []*dynaform.CreateCollectionRequest{
		{Name: "goose_db_version", DisplayName: "Versions"},
		{Name: "versions", DisplayName: "Versions", TableName: "goose_db_version"},
	} {
		_, err := cm.CreateCollection(context.Background(), req)
		require.Error(t, err)
		var de *dynaform.DynaformError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, dynaform.ErrCodeInvalidName, de.Code)
	}
	assert.Empty(t, exec.statements())
}

func TestCollectionManager_NotifierFailureDoesNotFailCreate(t *testing.T) {
	cm, store, _, notifier := newTestCollectionManager()
	notifier.err = errors.New("smtp down")

	_, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.NoError(t, err)
	assert.Len(t, store.collections, 1)
}

func TestCollectionManager_PanickingNotifierDoesNotFailCreate(t *testing.T) {
	store := newMockMetadataStore()
	panicking := dynaform.NotifierFunc(func(context.Context, string, dynaform.EventKind, map[string]any) error {
		panic("sink misconfigured")
	})
	cm := newCollectionManager(store, &recordingExecutor{}, nil, MultiNotifier{panicking})

	c, err := cm.CreateCollection(context.Background(), &dynaform.CreateCollectionRequest{Name: "posts", DisplayName: "Posts"})
	require.NoError(t, err)
	assert.Equal(t, "posts", c.TableName)
	assert.Len(t, store.collections, 1)
}

func TestCollectionManager_AddRequiredFieldBackfillsDefault(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	posts := createPosts(t, cm)
	exec.reset()

	f, err := cm.AddField(context.Background(), posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString, Required: true})
	require.NoError(t, err)

	assert.Equal(t, "title", f.DBColumn)
	assert.Equal(t, 2, f.Position)
	assert.Equal(t, []string{`ALTER TABLE "posts" ADD COLUMN "title" VARCHAR(255) NOT NULL DEFAULT ''`}, exec.statements())

	stored, err := store.GetField(context.Background(), f.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, posts.ID, stored.CollectionID)
}

func TestCollectionManager_AddIndexedField(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	posts := createPosts(t, cm)
	exec.reset()

	_, err := cm.AddField(context.Background(), posts.ID, &dynaform.AddFieldRequest{Name: "sku", Type: dynaform.FieldTypeString, Unique: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		`ALTER TABLE "posts" ADD COLUMN "sku" VARCHAR(255)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS "idx_posts_sku" ON "posts" ("sku")`,
	}, exec.statements())
}

func TestCollectionManager_AddFieldRejections(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	_, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString})
	require.NoError(t, err)
	exec.reset()

	_, err = cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeText})
	assert.True(t, dynaform.IsConflict(err))

	_, err = cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "body", Type: "NOPE"})
	assert.True(t, dynaform.IsValidation(err))

	_, err = cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "status", Type: dynaform.FieldTypeString})
	assert.True(t, dynaform.IsValidation(err))

	_, err = cm.AddField(ctx, uuid.New(), &dynaform.AddFieldRequest{Name: "body", Type: dynaform.FieldTypeText})
	assert.True(t, dynaform.IsNotFound(err))

	assert.Empty(t, exec.statements())
}

func TestCollectionManager_AddFieldMetadataFailureDropsColumn(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	posts := createPosts(t, cm)
	exec.reset()
	store.failOn["InsertField"] = errors.New("connection reset by peer")

	_, err := cm.AddField(context.Background(), posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString})
	require.Error(t, err)
	assert.True(t, dynaform.IsSchemaExecution(err))

	assert.Equal(t, []string{
		`ALTER TABLE "posts" ADD COLUMN "title" VARCHAR(255)`,
		`ALTER TABLE "posts" DROP COLUMN IF EXISTS "title"`,
	}, exec.statements())
}

func TestCollectionManager_AddFieldDDLFailureWritesNoMetadata(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	posts := createPosts(t, cm)
	exec.failOn = "ADD COLUMN"

	_, err := cm.AddField(context.Background(), posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString})
	require.Error(t, err)
	assert.True(t, dynaform.IsSchemaExecution(err))

	c, err := store.GetCollection(context.Background(), posts.ID)
	require.NoError(t, err)
	assert.Nil(t, fieldByName(c, "title"))
}

func TestCollectionManager_UpdateFieldRequiredOnlyIssuesNoDDL(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString})
	require.NoError(t, err)
	exec.reset()

	required := true
	updated, err := cm.UpdateField(ctx, posts.ID, f.ID, &dynaform.UpdateFieldRequest{Required: &required})
	require.NoError(t, err)

	// the existing column keeps accepting NULL; only metadata changes
	assert.True(t, updated.Required)
	assert.Empty(t, exec.statements())
}

func TestCollectionManager_UpdateFieldTypeAltersColumnFirst(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "views", Type: dynaform.FieldTypeString})
	require.NoError(t, err)
	exec.reset()

	newType := dynaform.FieldType("integer")
	updated, err := cm.UpdateField(ctx, posts.ID, f.ID, &dynaform.UpdateFieldRequest{Type: &newType})
	require.NoError(t, err)
	assert.Equal(t, dynaform.FieldTypeInteger, updated.Type)
	assert.Equal(t, []string{`ALTER TABLE "posts" ALTER COLUMN "views" TYPE INTEGER`}, exec.statements())

	stored, err := store.GetField(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, dynaform.FieldTypeInteger, stored.Type)
}

func TestCollectionManager_UpdateFieldIncompatibleCastFailsHard(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "views", Type: dynaform.FieldTypeText})
	require.NoError(t, err)
	exec.failOn = "ALTER COLUMN"

	newType := dynaform.FieldTypeInteger
	_, err = cm.UpdateField(ctx, posts.ID, f.ID, &dynaform.UpdateFieldRequest{Type: &newType})
	require.Error(t, err)
	assert.True(t, dynaform.IsSchemaExecution(err))

	stored, err := store.GetField(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, dynaform.FieldTypeText, stored.Type)
}

func TestCollectionManager_UpdateFieldMetadataFailureRevertsType(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "price", Type: dynaform.FieldTypeInteger})
	require.NoError(t, err)
	exec.reset()
	store.failOn["UpdateField"] = errors.New("timeout")

	newType := dynaform.FieldTypeDecimal
	_, err = cm.UpdateField(ctx, posts.ID, f.ID, &dynaform.UpdateFieldRequest{Type: &newType})
	require.Error(t, err)

	stmts := exec.statements()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "TYPE DECIMAL")
	assert.Equal(t, `ALTER TABLE "posts" ALTER COLUMN "price" TYPE INTEGER`, stmts[1])
}

func TestCollectionManager_FieldOperationsCheckOwnership(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	pages, err := cm.CreateCollection(ctx, &dynaform.CreateCollectionRequest{Name: "pages", DisplayName: "Pages"})
	require.NoError(t, err)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString})
	require.NoError(t, err)
	exec.reset()

	required := true
	_, err = cm.UpdateField(ctx, pages.ID, f.ID, &dynaform.UpdateFieldRequest{Required: &required})
	assert.True(t, dynaform.IsNotFound(err))

	err = cm.DeleteField(ctx, pages.ID, f.ID)
	assert.True(t, dynaform.IsNotFound(err))

	err = cm.DeleteField(ctx, posts.ID, uuid.New())
	assert.True(t, dynaform.IsNotFound(err))

	assert.Empty(t, exec.statements())
}

func TestCollectionManager_SystemFieldsAreImmutable(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	createdAt := fieldByName(posts, "created_at")
	require.NotNil(t, createdAt)
	exec.reset()

	err := cm.DeleteField(ctx, posts.ID, createdAt.ID)
	require.Error(t, err)
	var de *dynaform.DynaformError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, dynaform.ErrCodeSystemFieldImmutable, de.Code)

	newType := dynaform.FieldTypeText
	_, err = cm.UpdateField(ctx, posts.ID, createdAt.ID, &dynaform.UpdateFieldRequest{Type: &newType})
	assert.True(t, dynaform.IsValidation(err))
	assert.Empty(t, exec.statements())
}

func TestCollectionManager_DeleteFieldDropsColumnThenMetadata(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString})
	require.NoError(t, err)
	exec.reset()

	require.NoError(t, cm.DeleteField(ctx, posts.ID, f.ID))
	assert.Equal(t, []string{`ALTER TABLE "posts" DROP COLUMN IF EXISTS "title"`}, exec.statements())

	stored, err := store.GetField(ctx, f.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCollectionManager_DeleteFieldMetadataFailureRestoresColumn(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	f, err := cm.AddField(ctx, posts.ID, &dynaform.AddFieldRequest{Name: "code", Type: dynaform.FieldTypeString, Required: true, Indexed: true})
	require.NoError(t, err)
	exec.reset()
	store.failOn["DeleteField"] = errors.New("deadlock detected")

	err = cm.DeleteField(ctx, posts.ID, f.ID)
	require.Error(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "posts" DROP COLUMN IF EXISTS "code"`,
		`ALTER TABLE "posts" ADD COLUMN "code" VARCHAR(255) NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS "idx_posts_code" ON "posts" ("code")`,
	}, exec.statements())

	stored, err := store.GetField(ctx, f.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestCollectionManager_AddDeleteAddRoundTrip(t *testing.T) {
	cm, _, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	req := &dynaform.AddFieldRequest{Name: "title", Type: dynaform.FieldTypeString, Required: true}

	first, err := cm.AddField(ctx, posts.ID, req)
	require.NoError(t, err)
	require.NoError(t, cm.DeleteField(ctx, posts.ID, first.ID))
	exec.reset()

	second, err := cm.AddField(ctx, posts.ID, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.DBColumn, second.DBColumn)
	assert.Equal(t, []string{`ALTER TABLE "posts" ADD COLUMN "title" VARCHAR(255) NOT NULL DEFAULT ''`}, exec.statements())
}

func TestCollectionManager_DeleteCollection(t *testing.T) {
	cm, store, exec, notifier := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	exec.reset()

	require.NoError(t, cm.DeleteCollection(ctx, posts.ID))
	assert.Equal(t, []string{`DROP TABLE IF EXISTS "posts" CASCADE`}, exec.statements())
	assert.Empty(t, store.collections)
	assert.Empty(t, store.fields)
	assert.Equal(t, []dynaform.EventKind{dynaform.EventCollectionCreated, dynaform.EventCollectionDeleted}, notifier.kinds())

	err := cm.DeleteCollection(ctx, posts.ID)
	assert.True(t, dynaform.IsNotFound(err))
}

func TestCollectionManager_DeleteCollectionMetadataFailureReprovisions(t *testing.T) {
	cm, store, exec, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	exec.reset()
	store.failOn["DeleteCollection"] = errors.New("connection refused")

	err := cm.DeleteCollection(ctx, posts.ID)
	require.Error(t, err)

	stmts := exec.statements()
	require.Len(t, stmts, 6)
	assert.Equal(t, `DROP TABLE IF EXISTS "posts" CASCADE`, stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], `CREATE TABLE IF NOT EXISTS "posts"`))
	assert.Len(t, store.collections, 1)
}

func TestCollectionManager_ReadsAndStatus(t *testing.T) {
	cm, _, _, _ := newTestCollectionManager()
	ctx := context.Background()

	list, err := cm.ListCollections(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	posts := createPosts(t, cm)

	byName, err := cm.GetCollectionByName(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, posts.ID, byName.ID)
	assert.Len(t, byName.Fields, 2)

	_, err = cm.GetCollectionByName(ctx, "ghosts")
	assert.True(t, dynaform.IsNotFound(err))

	archived, err := cm.SetCollectionStatus(ctx, posts.ID, dynaform.CollectionStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, dynaform.CollectionStatusArchived, archived.Status)

	reloaded, err := cm.GetCollection(ctx, posts.ID)
	require.NoError(t, err)
	assert.Equal(t, dynaform.CollectionStatusArchived, reloaded.Status)

	_, err = cm.SetCollectionStatus(ctx, posts.ID, "DELETED")
	assert.True(t, dynaform.IsValidation(err))
}

func TestCollectionManager_AddRelation(t *testing.T) {
	cm, store, _, _ := newTestCollectionManager()
	ctx := context.Background()
	posts := createPosts(t, cm)
	authors, err := cm.CreateCollection(ctx, &dynaform.CreateCollectionRequest{Name: "authors", DisplayName: "Authors"})
	require.NoError(t, err)

	r, err := cm.AddRelation(ctx, &dynaform.AddRelationRequest{
		CollectionID:        posts.ID,
		RelatedCollectionID: authors.ID,
		RelationType:        dynaform.RelationOneToMany,
	})
	require.NoError(t, err)
	assert.Equal(t, dynaform.OnDeleteNoAction, r.OnDelete)
	assert.Len(t, store.relations, 1)

	_, err = cm.AddRelation(ctx, &dynaform.AddRelationRequest{CollectionID: posts.ID, RelatedCollectionID: authors.ID, RelationType: "sideways"})
	assert.True(t, dynaform.IsValidation(err))

	_, err = cm.AddRelation(ctx, &dynaform.AddRelationRequest{CollectionID: posts.ID, RelatedCollectionID: uuid.New(), RelationType: dynaform.RelationOneToOne})
	assert.True(t, dynaform.IsNotFound(err))
}
