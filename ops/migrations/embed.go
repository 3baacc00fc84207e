// Package migrations embeds the PostgreSQL schema so binaries ship without a migrations dir.
package migrations

import "embed"

//go:embed sql/*.sql seeds/*.sql
var FS embed.FS

const (
	SQLDir   = "sql"
	SeedsDir = "seeds"
)
