package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/catalog"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/http"
	"github.com/mrlokans/lending/internal/scheduler"
	"github.com/mrlokans/lending/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ http.BookStore = (*books.Repository)(nil)
var _ http.CatalogStore = (*catalog.Repository)(nil)
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Lending Core
// =============================================================================

var _ http.LoanLedger = (*loans.Ledger)(nil)
var _ tasks.OverdueLister = (*loans.Ledger)(nil)

// =============================================================================
// Audit Trail
// =============================================================================

var _ http.AuditReader = (*audit.Service)(nil)
var _ tasks.OverdueNotifier = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ scheduler.Enqueuer = (*tasks.Client)(nil)
