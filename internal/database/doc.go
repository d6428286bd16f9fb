// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, driver selection, migrations, category seeding
//	├── catalog/         # Authors, publishers and categories (unique by name)
//	├── books/           # Books, inventory invariants, category reconciliation, search
//	├── loans/           # The lending ledger: borrow, return, fines, overdue listing
//	├── users/           # User lookups
//	└── audit/           # Audit events
//
// # Transactions
//
// Every multi-step operation (borrow, return, book update, category
// reconciliation) runs inside a single db.Transaction. A failure at any step
// rolls back the whole operation; a cancelled context aborts the transaction.
//
// The number of available copies is only ever changed by a conditional
// UPDATE evaluated by the store, for example
//
//	UPDATE books SET available = available - 1 WHERE id = ? AND available > 0
//
// and the affected-row count decides the outcome. It is never read and then
// written back as two separate steps.
//
// # SQLite
//
// SQLite connections open with _txlock=immediate and a busy timeout (see
// SQLiteDSN), so concurrent writers queue on the database lock instead of
// failing. Postgres is supported through DATABASE_DRIVER=postgres.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Implement the required interface
//  5. Add compile-time interface check in internal/interfaces/checks.go
package database
