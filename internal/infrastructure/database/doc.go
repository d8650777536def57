// Package database provides the SQLite connection behind the node's journal.
//
// This package manages:
//   - Opening the journal file with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Health checks for the status server
//
// The database file is created with 0600 permissions. Queries use
// parameterised statements only.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
