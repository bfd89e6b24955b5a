package migrations

import "embed"

// FS contains embedded PostgreSQL migrations for registry storage.
//
//go:embed *.sql
var FS embed.FS
