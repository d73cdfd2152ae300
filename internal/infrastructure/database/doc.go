// Package database provides the controller's SQLite store.
//
// It owns the connection (WAL mode, busy timeout, single writer) and a small
// migration runner. Migrations are read from any fs.FS; the binary passes
// the embedded migrations.FS.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a default,
// and every .up.sql has a matching .down.sql.
package database
