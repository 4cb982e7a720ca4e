package migrations

import "embed"

// Postgres - файлы golang-migrate (NNN_name.up.sql / NNN_name.down.sql)
//
//go:embed postgres/*.sql
var Postgres embed.FS

const PostgresDir = "postgres"

//go:embed sqlite/schema.sql
var SQLiteSchema string
