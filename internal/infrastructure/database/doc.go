// Package database provides SQL connectivity for the Leitura auth service.
//
// This package manages:
//   - Connections to SQLite (default) or PostgreSQL through database/sql
//   - Schema migrations via goose, embedded into the binary
//   - Placeholder rebinding so repositories write "?" for both dialects
//   - Transaction helpers and driver-neutral constraint error detection
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite database file permissions are set to 0600 (owner read/write only)
//   - Session tokens are stored as opaque random strings, never JWTs
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Portability:
//
// Migrations and repository SQL stay inside the intersection of both
// dialects: TEXT timestamps in a fixed-width UTC layout, INTEGER booleans,
// and foreign keys with ON DELETE CASCADE.
package database
