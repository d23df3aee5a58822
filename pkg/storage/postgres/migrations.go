package postgres

import "embed"

// Migrations holds the assignment schema so the CLI can migrate without a checkout.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
