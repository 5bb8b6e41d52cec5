// Package migrations embeds the goose SQL migrations for the client
// database: the four mirrored entity tables plus the two outboxes.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
