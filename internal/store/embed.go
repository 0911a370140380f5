package store

import "embed"

// MigrationFS embeds the schema migrations applied at startup.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
