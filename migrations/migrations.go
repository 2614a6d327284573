// Package migrations embeds the campaign engine schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
