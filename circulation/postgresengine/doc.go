// Package postgresengine implements the circulation store contracts on
// PostgreSQL: the book catalog, the borrow ledger, the user directory, and
// the transaction runner that binds catalog and ledger writes into one
// atomic unit.
//
// The engine supports three database client libraries through a common
// adapter layer:
//   - pgx (NewStoreFromPGXPool) - recommended for production
//   - database/sql (NewStoreFromSQLDB) - works with lib/pq
//   - sqlx (NewStoreFromSQLX)
//
// All SQL is built with goqu using the postgres dialect. Circulation
// operations lock the affected rows with SELECT ... FOR UPDATE inside the
// transaction opened by WithinTx, which is what makes two concurrent borrow
// attempts on the same book serialize instead of both succeeding.
package postgresengine
