package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the reward service schema, applied by `reward-service migrate`
// and on `start` when Postgres is configured.
var Migrations = migrate.NewMigrations()
