package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/dynaform"
)

// PostsRequest is the collection definition shared by the scenarios.
func PostsRequest(fields ...dynaform.AddFieldRequest) *dynaform.CreateCollectionRequest {
	return &dynaform.CreateCollectionRequest{
		Name:        "posts",
		DisplayName: "Posts",
		Fields:      fields,
	}
}

// TableColumn is one row of information_schema.columns.
type TableColumn struct {
	Name     string
	Nullable bool
	Default  sql.NullString
}

// TableColumns returns the columns of table in ordinal order.
func TableColumns(ctx context.Context, db *sql.DB, table string) ([]TableColumn, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name, is_nullable = 'YES', column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var cols []TableColumn
	for rows.Next() {
		var c TableColumn
		if err := rows.Scan(&c.Name, &c.Nullable, &c.Default); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CountTables counts tables named table in the current schema.
func CountTables(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema = current_schema() AND table_name = $1`, table).Scan(&n)
	return n, err
}

// CountRows counts the rows of a collection table.
func CountRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n)
	return n, err
}

// ListArchivedObjects returns the keys stored under prefix in bucket.
func ListArchivedObjects(ctx context.Context, endpoint, accessKey, secretKey, bucket, prefix string) ([]string, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithBaseEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}
