package migrations

import "embed"

// FS holds the embedded migration scripts.
//
//go:embed scripts
var FS embed.FS
