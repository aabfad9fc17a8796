// Package migrations embeds the equipctl schema so the binary can migrate
// a fresh database without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
