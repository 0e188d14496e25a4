// Package postgresengine provides the PostgreSQL-backed purchase store for
// the settlement engine.
//
// It owns the persistence side of the purchase state machine: creating a
// pending purchase inside the same transactional window as the eligibility
// check, and committing each transition's purchase-row update together with
// the book's sold-flag update as one atomic unit. All SQL is built with goqu
// and executed through a database adapter, so the store works with pgx.Pool,
// sql.DB, or sqlx.DB connections.
//
// The authoritative duplicate-purchase guard is the partial unique index on
// (book_id, buyer_id) for non-cancelled rows (see db/structure.sql); the
// store maps unique-constraint violations to settlement.ErrDuplicatePurchase
// so concurrent create attempts surface as the same rejection the in-window
// check produces.
package postgresengine
