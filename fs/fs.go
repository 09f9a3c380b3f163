// Package appfs embeds the files shipped with the binaries: SQL migrations and the bundled school dataset.
package appfs

import "embed"

//go:embed migrations/*.sql data/*.json
var FS embed.FS

const (
	MigrationsDir   = "migrations"
	SchoolsDataPath = "data/schools.json"
)
