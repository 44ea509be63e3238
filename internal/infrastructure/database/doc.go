// Package database provides SQLite database connectivity for authd.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded, versioned schema migrations
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Refresh and one-shot tokens are stored as SHA-256 hashes, never raw
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "data/authd.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
