// Package migrations embeds the schema of the sqlite credential store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
