// Package migrations holds the goose schema for users, user_sessions and
// audit_logs. Importing it for side effects points the database package at
// the embedded files:
//
//	import _ "github.com/nerrad567/leitura-auth/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
)

//go:embed *.sql
var schema embed.FS

func init() {
	database.MigrationsFS = schema
	database.MigrationsDir = "."
}
