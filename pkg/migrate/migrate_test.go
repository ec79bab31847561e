package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDocumentsMigrationContainsSchema(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_documents.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no documents migration file found")

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS documents",
		"PRIMARY KEY (collection, id)",
		"revision BIGINT NOT NULL",
		"DROP TABLE IF EXISTS documents",
	} {
		require.Contains(t, content, sub)
	}
}

func TestValidateEmbedded(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	ok := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	cases := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "no timestamp",
			fsys: fstest.MapFS{"m/add_things.sql": {Data: ok}},
			want: "invalid migration filename",
		},
		{
			name: "uppercase slug",
			fsys: fstest.MapFS{"m/20250101000000_AddThings.sql": {Data: ok}},
			want: "invalid migration filename",
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"m/20250101000000_a.sql": {Data: ok},
				"m/20250101000000_b.sql": {Data: ok},
			},
			want: "duplicate migration version",
		},
		{
			name: "missing down",
			fsys: fstest.MapFS{"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
			want: "missing -- +goose Down",
		},
		{
			name: "unclosed statement",
			fsys: fstest.MapFS{"m/20250101000000_a.sql": {Data: []byte(
				"-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")}},
			want: "never closed",
		},
		{
			name: "stray end",
			fsys: fstest.MapFS{"m/20250101000000_a.sql": {Data: []byte(
				"-- +goose Up\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\n")}},
			want: "StatementEnd without StatementBegin",
		},
		{
			name: "empty",
			fsys: fstest.MapFS{"m/README.md": {Data: []byte("docs")}},
			want: "no migrations found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorContains(t, ValidateFS(tc.fsys, "m"), tc.want)
		})
	}
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"m/20250102000000_b.sql": {Data: []byte("-- +goose Down\nSELECT 1;\n")},
	}
	err := ValidateFS(fsys, "m")
	require.Len(t, multierr.Errors(err), 2)
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Offer Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_offer_index.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestCreateKeepsVersionsIncreasing(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := createAt(dir, "seed shops", now)
	require.NoError(t, err)
	require.Equal(t, "20250301090000_seed_shops.sql", filepath.Base(first))

	// a lagging clock still lands after the newest file
	second, err := createAt(dir, "seed shops", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, "20250301090001_seed_shops.sql", filepath.Base(second))
	require.NoError(t, ValidateDir(dir))
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "add_offer_index", slugify("  Add -- Offer  Index "))
	require.Equal(t, "v2_orders", slugify("V2/orders"))
	require.Empty(t, slugify("??"))
}

func TestDialect(t *testing.T) {
	require.Equal(t, "sqlite3", Dialect(config.DriverSQLite))
	require.Equal(t, "postgres", Dialect(config.DriverPostgres))
	require.Equal(t, "postgres", Dialect(""))
}

func TestEmbeddedUpAndBackOnSQLite(t *testing.T) {
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:migrate_embedded?mode=memory&cache=shared",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	require.NoError(t, Run(ctx, sqlDB, "sqlite3", Embedded(), "up"))

	var count int64
	require.NoError(t, client.DB().Raw("SELECT COUNT(*) FROM documents").Scan(&count).Error)
	require.Zero(t, count)

	// back to before the first migration drops the table
	require.NoError(t, To(ctx, sqlDB, "sqlite3", Embedded(), "0"))
	require.Error(t, client.DB().Raw("SELECT COUNT(*) FROM documents").Scan(&count).Error)
}

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	require.ErrorIs(t, Run(ctx, nil, "sqlite3", Embedded(), "up"), errNoDB)
	require.ErrorContains(t, Run(ctx, nil, "sqlite3", Embedded(), "fix"), "unsupported migrate command")
	require.ErrorIs(t, To(ctx, nil, "sqlite3", Embedded(), ""), errNoVersion)
	require.ErrorContains(t, To(ctx, nil, "sqlite3", Embedded(), "2025-03-01"), "invalid version")
}

func TestSourceString(t *testing.T) {
	require.Equal(t, "embedded:migrations", Embedded().String())
	require.Equal(t, DefaultDir, Disk(DefaultDir).String())
}
