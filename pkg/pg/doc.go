// Package pg connects to PostgreSQL through a pgx/v5 pool and applies goose
// migrations shipped in an fs.FS.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, "migrations", log); err != nil { ... }
//
// Error helpers classify driver errors (no rows, unique and check violations)
// so repositories can map them to domain errors.
package pg
