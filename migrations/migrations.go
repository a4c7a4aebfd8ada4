// Package migrations embeds the emails table schema for each record store
// backend, in golang-migrate file layout.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// FS returns the migrations for backend ("postgres" or "sqlite").
func FS(backend string) (fs.FS, error) {
	if _, err := fs.Stat(files, backend); err != nil {
		return nil, fmt.Errorf("no migrations for backend %q", backend)
	}
	return fs.Sub(files, backend)
}
