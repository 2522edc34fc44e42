// Package migrations embeds the SQL schema migrations for the document store.
package migrations

import "embed"

// FS contains the versioned .up.sql migration files.
//
//go:embed *.sql
var FS embed.FS
