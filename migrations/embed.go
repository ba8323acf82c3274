// Package migrations embeds the SQL migration files into the binary,
// so schema setup needs no files on the target filesystem.
package migrations

import (
	"embed"

	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files sit at the root of the embedded FS
}
