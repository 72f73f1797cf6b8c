// Package pg connects to PostgreSQL through a pgx pool and applies goose
// migrations from an fs.FS, usually an embedded directory.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
//		return err
//	}
//
// Healthcheck adapts the pool to the HTTP health endpoint, and the Is*Error
// helpers classify driver errors without importing pgconn in callers.
package pg
