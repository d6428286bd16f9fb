package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/auth"
	"github.com/mrlokans/lending/internal/entities"
)

// Server bundles the router with the resources that must be released on
// shutdown.
type Server struct {
	Router *gin.Engine
	auth   *auth.AuthController
}

// Close stops background goroutines owned by the controllers.
func (s *Server) Close() {
	if s.auth != nil {
		s.auth.Stop()
	}
}

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies, improving testability
// and reducing parameter count.
func NewRouter(cfg RouterConfig) *Server {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	router.Use(auth.SecurityHeadersMiddleware())
	router.Use(auth.StrictTransportSecurityMiddleware())

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService))
	}

	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}

	requireAdmin := func(c *gin.Context) { c.Next() }
	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.Handler())
		requireAdmin = cfg.AuthMiddleware.RequireRole(entities.UserRoleAdmin)
	} else {
		// No auth - inject default user ID
		router.Use(func(c *gin.Context) {
			c.Set(auth.ContextKeyUserID, auth.DefaultUserID)
			c.Set(auth.ContextKeyAuthType, auth.AuthTypeNone)
			c.Next()
		})
	}

	server := &Server{Router: router}

	if cfg.AuthService != nil && cfg.AuthService.IsAuthEnabled() {
		server.auth = auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.Auditor, cfg.AuthConfig)
		server.auth.RegisterRoutes(router, requireAdmin)
	}

	health := NewHealthController(cfg.Database, cfg.Version)
	booksController := NewBooksController(cfg.Books, cfg.Auditor)
	catalogController := NewCatalogController(cfg.Catalog, cfg.Auditor)
	loansController := NewLoansController(cfg.Ledger, cfg.Auditor)
	auditController := NewAuditController(cfg.AuditLog)

	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	api := router.Group("/api")
	{
		api.GET("/books", booksController.Search)
		api.GET("/books/:id", booksController.Get)
		api.POST("/books", requireAdmin, booksController.Create)
		api.PUT("/books/:id", requireAdmin, booksController.Update)
		api.PUT("/books/:id/categories", requireAdmin, booksController.ReconcileCategories)
		api.DELETE("/books/:id", requireAdmin, booksController.Delete)

		api.POST("/books/:id/borrow", loansController.Borrow)
		api.POST("/books/:id/return", loansController.ReturnBook)
		api.GET("/books/:id/loans", requireAdmin, loansController.ListBookLoans)

		api.GET("/loans", loansController.ListLoans)
		api.GET("/loans/overdue", requireAdmin, loansController.ListOverdue)
		api.GET("/loans/:id", loansController.GetLoan)
		api.POST("/loans/:id/return", loansController.ReturnLoan)
		api.POST("/loans/:id/fine/pay", loansController.PayFine)
		api.GET("/fines", loansController.ListFines)

		api.GET("/audit", requireAdmin, auditController.List)
	}
	catalogController.RegisterRoutes(api, requireAdmin)

	return server
}
