// Package pgstore implements the billing Store, Ledger and
// PlanChangeValidator on PostgreSQL through pgx/v5.
//
// The schema ships as goose migrations in Migrations and is tracked in its
// own version table, so it can share a database with other schemas:
//
//	cfg.MigrationsTable = pgstore.MigrationsTable
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil { ... }
//
// The ledger claim is a single INSERT ... ON CONFLICT DO NOTHING, so exactly
// one of any number of concurrent deliveries of an event wins, across
// processes. Ledger payloads may be sealed with a secrets.Sealer.
package pgstore
