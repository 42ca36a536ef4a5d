// Package history stores the bridge's activity journal in SQLite.
//
// Every enrolment, deletion and device rejection the bridge acts on is
// recorded with its roll, source and the registry size afterwards. The
// journal is append-only apart from retention pruning and is served by the
// history API endpoint.
package history
