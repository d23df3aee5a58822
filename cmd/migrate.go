package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/porthorian/cityauthz/pkg/storage/postgres"
)

const (
	embeddedMigrationsSource = "embedded:pkg/storage/postgres/migrations"
	defaultMigrationsTable   = "cityauthz.schema_migrations"
)

type migrateConfig struct {
	DatabaseURL     string
	MigrationsTable string
	MigrationsPath  string
}

func init() {
	rootCmd.AddCommand(newMigrateCommand())
}

func newMigrateCommand() *cobra.Command {
	cfg := migrateConfig{MigrationsTable: defaultMigrationsTable}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run building assignment schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	migrateCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", "", "Database connection URL. Can also be set via CITYAUTHZ_MIGRATE_DATABASE_URL.")
	migrateCmd.PersistentFlags().StringVar(&cfg.MigrationsTable, "migrations-table", cfg.MigrationsTable, "Migrations version table name. Supports table or schema.table format. Can also be set via CITYAUTHZ_MIGRATE_MIGRATIONS_TABLE.")
	migrateCmd.PersistentFlags().StringVar(&cfg.MigrationsPath, "migrations-path", "", "Path or source URL for migration files. Defaults to the migrations compiled into the binary.")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending schema migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, hasSteps, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			return withMigrationRunner(cmd, cfg, func(runner *migrate.Migrate, source string) error {
				if hasSteps {
					err = runner.Steps(steps)
				} else {
					err = runner.Up()
				}

				switch applied, handled := boundaryOutcome(err, steps, hasSteps); {
				case err == nil && hasSteps:
					cmd.Printf("Applied %d migration step(s) from %s\n", steps, source)
				case err == nil:
					cmd.Printf("Applied all pending migrations from %s\n", source)
				case handled && applied <= 0:
					cmd.Println("No schema changes to apply.")
				case handled:
					cmd.Printf("Applied %d migration step(s) from %s (requested %d step(s), reached migration boundary)\n", applied, source, steps)
				default:
					return fmt.Errorf("apply migrations: %w", err)
				}
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back schema migrations by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			return withMigrationRunner(cmd, cfg, func(runner *migrate.Migrate, source string) error {
				err := runner.Steps(-steps)
				switch rolledBack, handled := boundaryOutcome(err, steps, true); {
				case err == nil:
					cmd.Printf("Rolled back %d migration step(s) from %s\n", steps, source)
				case handled && rolledBack <= 0:
					cmd.Println("No schema changes to rollback.")
				case handled:
					cmd.Printf("Rolled back %d migration step(s) from %s (requested %d step(s), reached migration boundary)\n", rolledBack, source, steps)
				default:
					return fmt.Errorf("rollback migrations: %w", err)
				}
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationRunner(cmd, cfg, func(runner *migrate.Migrate, _ string) error {
				version, dirty, err := runner.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("No migrations applied.")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read migration version: %w", err)
				}

				cmd.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force-set migration version (-1 for nil version)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersionArg(args[0])
			if err != nil {
				return err
			}

			return withMigrationRunner(cmd, cfg, func(runner *migrate.Migrate, _ string) error {
				if err := runner.Force(version); err != nil {
					return fmt.Errorf("force migration version: %w", err)
				}

				if version == -1 {
					cmd.Println("Forced migration version to -1 (no version).")
					return nil
				}
				cmd.Printf("Forced migration version to %d.\n", version)
				return nil
			})
		},
	})

	return migrateCmd
}

func withMigrationRunner(cmd *cobra.Command, cfg migrateConfig, fn func(runner *migrate.Migrate, source string) error) error {
	runner, source, err := newMigrationRunner(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeMigrationRunner(runner); closeErr != nil {
			cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
		}
	}()

	return fn(runner, source)
}

// boundaryOutcome reports how many of the requested steps ran when err only
// signals that the migration boundary was reached.
func boundaryOutcome(err error, steps int, hasSteps bool) (int, bool) {
	if err == nil {
		return steps, false
	}
	if isNoChangeBoundaryError(err) {
		return 0, true
	}

	var shortLimit migrate.ErrShortLimit
	if hasSteps && errors.As(err, &shortLimit) {
		return steps - int(shortLimit.Short), true
	}
	return 0, false
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func resolveDatabaseURL(databaseURLFlag string) (string, error) {
	for _, candidate := range []string{
		strings.TrimSpace(databaseURLFlag),
		lookupEnv("CITYAUTHZ_MIGRATE_DATABASE_URL"),
		lookupEnv("CITYAUTHZ_DATABASE_URL"),
	} {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", errors.New("missing database URL: set --database-url or CITYAUTHZ_MIGRATE_DATABASE_URL")
}

func parseMigrationStepsArg(args []string) (int, bool, error) {
	if len(args) == 0 {
		return 0, false, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, false, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}
	return steps, true, nil
}

func parseForceVersionArg(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < -1 {
		return 0, fmt.Errorf("invalid force version %q: expected an integer >= -1", arg)
	}
	return version, nil
}

func newMigrationRunner(cfg migrateConfig) (*migrate.Migrate, string, error) {
	databaseURL, err := resolveDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}

	table, err := parseMigrationsTable(resolveMigrationsTable(cfg.MigrationsTable))
	if err != nil {
		return nil, "", err
	}
	if err := ensureMigrationsSchema(databaseURL, table); err != nil {
		return nil, "", err
	}
	if databaseURL, err = applyMigrationsTable(databaseURL, table); err != nil {
		return nil, "", err
	}

	sourceURL, err := resolveMigrationsSourceURL(cfg.MigrationsPath)
	if err != nil {
		return nil, "", err
	}

	if sourceURL != "" {
		runner, err := migrate.New(sourceURL, databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("create migrate runner: %w", err)
		}
		return runner, sourceURL, nil
	}

	source, err := iofs.New(postgres.Migrations, postgres.MigrationsDir)
	if err != nil {
		return nil, "", fmt.Errorf("open embedded migrations: %w", err)
	}
	runner, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("create migrate runner: %w", err)
	}
	return runner, embeddedMigrationsSource, nil
}

func resolveMigrationsTable(flagValue string) string {
	if value := strings.TrimSpace(flagValue); value != "" {
		return value
	}
	if value := lookupEnv("CITYAUTHZ_MIGRATE_MIGRATIONS_TABLE"); value != "" {
		return value
	}
	return defaultMigrationsTable
}

type migrationsTable struct {
	Schema string
	Table  string
}

// parseMigrationsTable accepts "table" or "schema.table".
func parseMigrationsTable(value string) (migrationsTable, error) {
	parts := strings.Split(strings.TrimSpace(value), ".")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return migrationsTable{}, fmt.Errorf("invalid migrations table %q", value)
		}
	}

	switch len(parts) {
	case 1:
		return migrationsTable{Table: parts[0]}, nil
	case 2:
		return migrationsTable{Schema: parts[0], Table: parts[1]}, nil
	default:
		return migrationsTable{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
	}
}

// applyMigrationsTable points golang-migrate at table unless the URL already names one.
func applyMigrationsTable(databaseURL string, table migrationsTable) (string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse --database-url: %w", err)
	}

	query := parsed.Query()
	if strings.TrimSpace(query.Get("x-migrations-table")) != "" {
		return databaseURL, nil
	}

	if table.Schema == "" {
		query.Set("x-migrations-table", table.Table)
	} else {
		query.Set("x-migrations-table", pq.QuoteIdentifier(table.Schema)+"."+pq.QuoteIdentifier(table.Table))
		query.Set("x-migrations-table-quoted", "true")
	}

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// ensureMigrationsSchema creates the version table's schema, which must exist
// before golang-migrate can create the table in it.
func ensureMigrationsSchema(databaseURL string, table migrationsTable) error {
	if table.Schema == "" {
		return nil
	}

	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse --database-url: %w", err)
	}

	db, err := sql.Open("postgres", migrate.FilterCustomQuery(parsed).String())
	if err != nil {
		return fmt.Errorf("open database for schema bootstrap: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(table.Schema)); err != nil {
		return fmt.Errorf("ensure migrations schema %q exists: %w", table.Schema, err)
	}
	return nil
}

// resolveMigrationsSourceURL returns "" when the embedded migrations should be used.
func resolveMigrationsSourceURL(migrationsPath string) (string, error) {
	pathOrURL := strings.TrimSpace(migrationsPath)
	if pathOrURL == "" || strings.Contains(pathOrURL, "://") {
		return pathOrURL, nil
	}

	absPath, err := filepath.Abs(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %q: %w", pathOrURL, err)
	}
	return "file://" + filepath.ToSlash(absPath), nil
}

func closeMigrationRunner(runner *migrate.Migrate) error {
	if runner == nil {
		return nil
	}

	sourceErr, databaseErr := runner.Close()
	return errors.Join(sourceErr, databaseErr)
}

// isNoChangeBoundaryError also matches the bare os.ErrNotExist that Steps
// returns once it runs past the first or last migration.
func isNoChangeBoundaryError(err error) bool {
	return errors.Is(err, migrate.ErrNoChange) || err == os.ErrNotExist
}
