// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver: connection pooling with retry, schema migrations, and a
// health check hook.
//
// Three cooperating building blocks:
//
//   - Config – a declarative struct whose fields are populated from
//     environment variables via github.com/caarlos0/env. It controls
//     connection pool limits, health-check cadence and migration paths.
//
//   - Connect – opens a *pgxpool.Pool based on Config, retrying with
//     back-off until the database becomes available.
//
//   - Migrate – runs goose database migrations against the same connection
//     pool, guaranteeing the flag schema is in place before the service
//     starts answering evaluation requests.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    return err
//	}
package pg
