package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSListsBothBackends(t *testing.T) {
	for _, backend := range []string{"postgres", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			fsys, err := FS(backend)
			require.NoError(t, err)

			up, err := fs.ReadFile(fsys, "000001_create_emails.up.sql")
			require.NoError(t, err)
			assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS emails")

			_, err = fs.Stat(fsys, "000001_create_emails.down.sql")
			assert.NoError(t, err)
		})
	}
}

func TestFSUnknownBackend(t *testing.T) {
	_, err := FS("mysql")
	assert.ErrorContains(t, err, "mysql")
}
