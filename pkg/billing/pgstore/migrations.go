package pgstore

import "embed"

// Migrations holds the goose migrations for the billing tables.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "billing_schema_migrations"
)
