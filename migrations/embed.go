// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// FS holds the *.sql migrations applied by migrate.Up.
//
//go:embed *.sql
var FS embed.FS
