// Package appfs embeds the files shipped inside the binaries:
// database migrations, email templates, JSON schemas and assets.
package appfs

import "embed"

//go:embed migrations all:templates schemas assets
var FS embed.FS
