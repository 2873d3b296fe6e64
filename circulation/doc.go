// Package circulation provides the core domain model and the Coordinator
// for a library circulation backend.
//
// The package coordinates three stateful resources:
//   - a book catalog carrying a denormalized availability flag
//   - a ledger of borrow records (the loan history)
//   - an attachment store holding binary objects (covers, documents) per book
//
// The Coordinator is the only component allowed to mutate Book.Status. It
// enforces the central invariant that a book's status is "borrowed" exactly
// when the ledger holds an open borrow record for that book, by applying
// every ledger write and the corresponding catalog write inside a single
// transaction supplied by a TxRunner.
//
// Store implementations live in the engine subpackages:
//   - postgresengine: catalog, ledger and user directory on PostgreSQL
//   - minioengine: attachment store on MinIO-compatible object storage
package circulation
