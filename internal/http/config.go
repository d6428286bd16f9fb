package http

import (
	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/auth"
	"github.com/mrlokans/lending/internal/config"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Books    BookStore
	Catalog  CatalogStore
	Ledger   LoanLedger
	Database Pinger

	// Audit trail; AuditLog reads events back for admins
	Auditor  *audit.Service
	AuditLog AuditReader

	// Authentication
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	SessionManager *auth.SessionManager
	AuthConfig     config.Auth

	// CSRF protection for session clients (nil disables it)
	CSRFSecret    []byte
	SecureCookies bool

	// Application info
	Version string
}
