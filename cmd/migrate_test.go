package cmd

import (
	"errors"
	"io/fs"
	"net/url"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/cityauthz/pkg/storage/postgres"
)

func TestParseMigrationsTable(t *testing.T) {
	cases := []struct {
		in      string
		schema  string
		table   string
		wantErr bool
	}{
		{in: "schema_migrations", table: "schema_migrations"},
		{in: " cityauthz.schema_migrations ", schema: "cityauthz", table: "schema_migrations"},
		{in: "", wantErr: true},
		{in: "a.b.c", wantErr: true},
		{in: ".versions", wantErr: true},
	}

	for _, tc := range cases {
		table, err := parseMigrationsTable(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.schema, table.Schema, tc.in)
		assert.Equal(t, tc.table, table.Table, tc.in)
	}
}

func TestApplyMigrationsTable(t *testing.T) {
	out, err := applyMigrationsTable("postgres://localhost/city?sslmode=disable", migrationsTable{Schema: "cityauthz", Table: "schema_migrations"})
	require.NoError(t, err)

	parsed, err := url.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, `"cityauthz"."schema_migrations"`, parsed.Query().Get("x-migrations-table"))
	assert.Equal(t, "true", parsed.Query().Get("x-migrations-table-quoted"))
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))

	explicit := "postgres://localhost/city?x-migrations-table=versions"
	out, err = applyMigrationsTable(explicit, migrationsTable{Table: "schema_migrations"})
	require.NoError(t, err)
	assert.Equal(t, explicit, out)
}

func TestResolveMigrationsTable(t *testing.T) {
	t.Setenv("CITYAUTHZ_MIGRATE_MIGRATIONS_TABLE", "")
	assert.Equal(t, defaultMigrationsTable, resolveMigrationsTable(""))

	t.Setenv("CITYAUTHZ_MIGRATE_MIGRATIONS_TABLE", "ops.versions")
	assert.Equal(t, "ops.versions", resolveMigrationsTable(""))
	assert.Equal(t, "flag_table", resolveMigrationsTable("flag_table"))
}

func TestMigrationArgs(t *testing.T) {
	steps, ok, err := parseMigrationStepsArg(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, steps)

	steps, ok, err = parseMigrationStepsArg([]string{"3"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, steps)

	_, _, err = parseMigrationStepsArg([]string{"0"})
	assert.Error(t, err)

	version, err := parseForceVersionArg("-1")
	require.NoError(t, err)
	assert.Equal(t, -1, version)

	_, err = parseForceVersionArg("-2")
	assert.Error(t, err)
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Setenv("CITYAUTHZ_MIGRATE_DATABASE_URL", "")
	t.Setenv("CITYAUTHZ_DATABASE_URL", "postgres://fallback/city")

	got, err := resolveDatabaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://fallback/city", got)

	got, err = resolveDatabaseURL(" postgres://flag/city ")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/city", got)

	t.Setenv("CITYAUTHZ_DATABASE_URL", "")
	_, err = resolveDatabaseURL("")
	assert.Error(t, err)
}

func TestResolveMigrationsSourceURL(t *testing.T) {
	got, err := resolveMigrationsSourceURL("file:///srv/migrations")
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/migrations", got)

	got, err = resolveMigrationsSourceURL(" ")
	require.NoError(t, err)
	assert.Empty(t, got, "empty path selects the embedded migrations")

	got, err = resolveMigrationsSourceURL("/srv/migrations")
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/migrations", got)
}

func TestBoundaryOutcome(t *testing.T) {
	applied, handled := boundaryOutcome(nil, 2, true)
	assert.Equal(t, 2, applied)
	assert.False(t, handled)

	_, handled = boundaryOutcome(migrate.ErrNoChange, 0, false)
	assert.True(t, handled)

	applied, handled = boundaryOutcome(migrate.ErrShortLimit{Short: 1}, 3, true)
	assert.True(t, handled)
	assert.Equal(t, 2, applied)

	_, handled = boundaryOutcome(errors.New("connection refused"), 3, true)
	assert.False(t, handled)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(postgres.Migrations, postgres.MigrationsDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "000001_building_assignment.down.sql", entries[0].Name())
	assert.Equal(t, "000001_building_assignment.up.sql", entries[1].Name())
}
