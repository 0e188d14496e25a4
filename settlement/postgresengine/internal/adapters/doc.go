// Package adapters provides database adapter implementations for the PostgreSQL
// settlement engine.
//
// This package implements the adapter pattern to support multiple PostgreSQL
// database libraries: pgx.Pool, sql.DB, and sqlx.DB. All adapters provide
// equivalent functionality through a common DBAdapter interface, allowing the
// settlement engine to work seamlessly with any supported connection type.
//
// Since every purchase transition updates the purchase row and the book row
// as one atomic unit, the adapters also expose transactions through the DBTx
// interface.
package adapters
