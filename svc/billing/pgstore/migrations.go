package pgstore

import "embed"

// Migrations holds the goose SQL migrations for the billing schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations to pass to pg.Migrate.
const MigrationsDir = "migrations"
