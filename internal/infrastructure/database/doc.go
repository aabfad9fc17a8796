// Package database provides SQLite connectivity and schema migrations.
//
// The pool is pinned to one connection. Foreign keys are always enforced,
// which the equipment status log cascade relies on.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// are embedded by the migrations package.
package database
