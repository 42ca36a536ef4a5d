// Package database opens the SQLite file that backs fpbridge's activity
// journal and applies its schema migrations.
//
// The enrolled-user registry does not live here; it stays in its JSON
// document so the browser client and firmware tooling can read it
// directly. SQLite only holds data the bridge derives: the activity
// journal queried by the history endpoint.
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql. Each
// migration runs in its own transaction and is recorded in
// schema_migrations. The schema only moves forward.
package database
