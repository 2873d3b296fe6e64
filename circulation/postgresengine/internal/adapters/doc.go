// Package adapters provides database adapter implementations that abstract
// different PostgreSQL client libraries (pgx, database/sql, sqlx) behind a
// common interface with transaction support, so the circulation stores can
// run unchanged on any of them.
package adapters
