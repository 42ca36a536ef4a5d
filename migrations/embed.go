// Package migrations embeds the SQLite schema for fpbridge's activity
// journal so the binary carries its own schema.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Pass it to
// (*database.DB).Migrate.
//
//go:embed *.sql
var FS embed.FS
