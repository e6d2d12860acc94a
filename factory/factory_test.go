package factory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/internal"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tablesQuery = regexp.QuoteMeta("FROM information_schema.tables")

func TestNewServicesWithConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(tablesQuery).WillReturnRows(
		pgxmock.NewRows([]string{"table_name"}).
			AddRow("dynaform_collections").
			AddRow("dynaform_fields").
			AddRow("dynaform_relations").
			AddRow("posts"),
	)

	svc, err := NewServicesWithConfig(context.Background(), dynaform.DefaultConfig(), mock, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc.Collections)
	assert.NotNil(t, svc.Records)
	assert.IsType(t, internal.LogNotifier{}, svc.Notifier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewServicesWithConfig_MissingMetadataTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(tablesQuery).WillReturnRows(
		pgxmock.NewRows([]string{"table_name"}).AddRow("dynaform_collections"),
	)

	_, err = NewServicesWithConfig(context.Background(), dynaform.DefaultConfig(), mock, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynaform_fields")
}

func TestNewServicesWithConfig_QueryFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(tablesQuery).WillReturnError(errors.New("connection reset"))

	_, err = NewServicesWithConfig(context.Background(), dynaform.DefaultConfig(), mock, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestNewServicesWithConfig_RejectsBadInput(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	ctx := context.Background()

	_, err = NewServicesWithConfig(ctx, nil, mock, nil)
	assert.Error(t, err)

	_, err = NewServicesWithConfig(ctx, dynaform.DefaultConfig(), nil, nil)
	assert.Error(t, err)

	cfg := dynaform.DefaultConfig()
	cfg.Query.MaxPageSize = 1
	_, err = NewServicesWithConfig(ctx, cfg, mock, nil)
	var cfgErr *dynaform.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "query.maxPageSize", cfgErr.Field)
}

func TestNewNotifier(t *testing.T) {
	ctx := context.Background()

	cfg := dynaform.DefaultConfig()
	guarded, err := NewNotifier(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &internal.GuardedNotifier{}, guarded)
	assert.NoError(t, guarded.Notify(ctx, "u", dynaform.EventRecordCreated, map[string]any{"collection": "posts"}))

	cfg.Notification.Enabled = false
	plain, err := NewNotifier(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, internal.MultiNotifier{}, plain)
}

func TestNewNotifier_InvalidEventsConfig(t *testing.T) {
	cfg := dynaform.DefaultConfig()
	cfg.Events.S3Bucket = "archive"

	_, err := NewNotifier(context.Background(), cfg)
	assert.Error(t, err)
}
