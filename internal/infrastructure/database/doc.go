// Package database provides SQLite connectivity and schema migrations.
//
// Open applies the pragmas the store relies on (busy timeout, optional WAL
// with synchronous=NORMAL) and limits the pool to one connection. Migrate
// applies versioned SQL files from an fs.FS, normally the embedded set in
// the migrations package, recording each in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Store.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is chmod 0600.
package database
