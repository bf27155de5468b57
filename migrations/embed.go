// Package migrations embeds the forward-only SQL schema files so the
// binary carries its own schema regardless of working directory.
package migrations

import "embed"

// FS holds every numbered .sql file in this directory, applied in
// lexical order by storage.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
