// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - BookStore: catalog search and book edits (internal/http/stores.go)
//   - CatalogStore: authors, publishers, categories (internal/http/stores.go)
//   - Pinger: database liveness for /health (internal/http/health.go)
//
// ## Lending Core
//
//   - LoanLedger: borrow, return, fines and overdue listings (internal/http/stores.go)
//   - OverdueLister: what the overdue sweep reads (internal/tasks/overdue_sweep.go)
//
// ## Audit Trail
//
//   - AuditReader: paged audit queries (internal/http/stores.go)
//   - OverdueNotifier: one overdue notice per loan per day (internal/tasks/overdue_sweep.go)
//   - AuditEventCleaner: retention with optional archiving (internal/tasks/cleanup_audit.go)
//
// ## Background Work
//
//   - Enqueuer: where cron ticks put tasks (internal/scheduler/scheduler.go)
//
// # Implementations
//
// Each interface is satisfied by exactly one production type; checks.go pins
// those pairs at compile time:
//
//	*books.Repository   -> http.BookStore
//	*catalog.Repository -> http.CatalogStore
//	*database.Database  -> http.Pinger
//	*loans.Ledger       -> http.LoanLedger, tasks.OverdueLister
//	*audit.Service      -> http.AuditReader, tasks.OverdueNotifier, tasks.AuditEventCleaner
//	*tasks.Client       -> scheduler.Enqueuer
package interfaces
