package internal

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresExecutor_ExecDDL(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stmt := `DROP TABLE IF EXISTS "posts" CASCADE`
	mock.ExpectExec("^" + regexp.QuoteMeta(stmt) + "$").
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	exec := NewPostgresExecutor(mock)
	require.NoError(t, exec.ExecDDL(ctx, stmt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExecutor_ExecDDLReturnsStoreErrorVerbatim(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storeErr := errors.New(`column "title" of relation "posts" already exists`)
	mock.ExpectExec(`^ALTER TABLE`).WillReturnError(storeErr)

	exec := NewPostgresExecutor(mock)
	err = exec.ExecDDL(ctx, `ALTER TABLE "posts" ADD COLUMN "title" TEXT`)
	require.Error(t, err)
	assert.Equal(t, storeErr.Error(), err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExecutor_ExecReturnsAffectedRows(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`^DELETE FROM "posts" WHERE "id" = \$1$`).
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	exec := NewPostgresExecutor(mock)
	n, err := exec.Exec(ctx, `DELETE FROM "posts" WHERE "id" = $1`, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExecutor_QueryCollectsMaps(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "title"}).
		AddRow("1", "first").
		AddRow("2", "second")
	mock.ExpectQuery(`^SELECT "id", "title" FROM "posts"`).WillReturnRows(rows)

	exec := NewPostgresExecutor(mock)
	got, err := exec.Query(ctx, `SELECT "id", "title" FROM "posts"`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0]["title"])
	assert.Equal(t, "2", got[1]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExecutor_TelemetryEmitted(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var names []string
	var labels []map[string]string
	RegisterTelemetryEmitter(func(_ context.Context, name string, l map[string]string, _ any) {
		names = append(names, name)
		labels = append(labels, l)
	})
	defer RegisterTelemetryEmitter(nil)

	mock.ExpectExec(`^CREATE INDEX`).WillReturnError(errors.New("boom"))

	exec := NewPostgresExecutor(mock)
	require.Error(t, exec.ExecDDL(ctx, `CREATE INDEX IF NOT EXISTS "idx_posts_title" ON "posts" ("title")`))

	require.Equal(t, []string{"dynaform_statement_latency_ms"}, names)
	assert.Equal(t, "ddl", labels[0]["kind"])
	assert.Equal(t, "true", labels[0]["failed"])
}
