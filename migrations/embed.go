// Package migrations embeds the SQL schema files for each persistence engine.
// Migrations are embedded so they work regardless of working directory.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the migrations for the embedded SQLite engine.
func SQLite() fs.FS {
	sub, err := fs.Sub(files, "sqlite")
	if err != nil {
		panic(err) // embed pattern guarantees the directory exists
	}
	return sub
}

// Postgres returns the migrations for the Postgres engine.
func Postgres() fs.FS {
	sub, err := fs.Sub(files, "postgres")
	if err != nil {
		panic(err)
	}
	return sub
}
