package entrypoint

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/auth"
	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/database"
	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/catalog"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/database/users"
	http_controllers "github.com/mrlokans/lending/internal/http"
	"github.com/mrlokans/lending/internal/scheduler"
	"github.com/mrlokans/lending/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) sends SIGTERM, kill -2 sends SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests before draining the queue and audit writer.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Lending Ledger v%s", version)

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	ledger, err := loans.NewLedgerFromConfig(db.DB, cfg.Lending)
	if err != nil {
		log.Fatalf("Invalid lending configuration: %v", err)
	}
	policy := ledger.Policy()
	log.Printf("[LEDGER] Fine policy: %s %s per day late", policy.Rate.StringFixed(2), policy.Currency)

	bookRepo := books.NewRepository(db.DB)
	bookRepo.SetPageLimits(cfg.Catalog.DefaultPageSize, cfg.Catalog.MaxPageSize)
	catalogRepo := catalog.NewRepository(db.DB)
	auditService := audit.NewService(auditRepo.NewRepository(db.DB))

	taskClient, sched, taskCtxCancel := startBackgroundWork(cfg, ledger, auditService)

	var authService *auth.Service
	var authMiddleware *auth.Middleware
	var sessionManager *auth.SessionManager
	var csrfSecret []byte

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Printf("Authentication mode: local")

		authService = auth.NewService(users.NewRepository(db.DB), cfg.Auth)

		// Sessions share the SQLite file; other drivers keep them in memory.
		var sessionDB *sql.DB
		if cfg.Database.Driver == config.DriverSQLite || cfg.Database.Driver == "" {
			sessionDB, err = db.DB.DB()
			if err != nil {
				log.Fatalf("Failed to get SQL DB for sessions: %v", err)
			}
		}
		sessionManager, err = auth.NewSessionManager(sessionDB, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize session manager: %v", err)
		}

		authMiddleware = auth.NewMiddleware(authService, sessionManager, cfg.Auth)

		csrfSecret, err = csrfSecretFrom(cfg.Auth.SessionSecret)
		if err != nil {
			log.Fatalf("Failed to generate CSRF secret: %v", err)
		}

		hasUsers, _ := authService.HasUsers(context.Background())
		if !hasUsers {
			log.Printf("No users found. POST /api/auth/setup or run 'create-user -role admin' to create a librarian account.")
		}
	} else {
		log.Printf("Authentication mode: none (callers must send user_id)")
	}

	server := http_controllers.NewRouter(http_controllers.RouterConfig{
		Books:          bookRepo,
		Catalog:        catalogRepo,
		Ledger:         ledger,
		Database:       db,
		Auditor:        auditService,
		AuditLog:       auditService,
		AuthService:    authService,
		AuthMiddleware: authMiddleware,
		SessionManager: sessionManager,
		AuthConfig:     cfg.Auth,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Auth.SecureCookies,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		server.Close()
		if sched != nil {
			sched.Stop()
		}
		if taskClient != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}
		auditService.Wait()
	}

	Serve(server.Router, cfg, onShutdown)
}

// startBackgroundWork starts the task queue and, when schedules are enabled,
// the cron scheduler that feeds it. Everything returned is nil when the queue
// is disabled.
func startBackgroundWork(cfg *config.Config, ledger *loans.Ledger, auditService *audit.Service) (*tasks.Client, *scheduler.Scheduler, context.CancelFunc) {
	if !cfg.Tasks.Enabled {
		log.Printf("[TASK] Task queue disabled")
		return nil, nil, func() {}
	}

	tasksPath := tasks.DatabasePath(config.DefaultDatabasePath)
	if cfg.Database.Driver == config.DriverSQLite || cfg.Database.Driver == "" {
		tasksPath = tasks.DatabasePath(cfg.Database.Path)
	}

	taskClient, err := tasks.NewClient(tasksPath, tasks.FromConfig(cfg.Tasks))
	if err != nil {
		log.Fatalf("Failed to initialize task queue: %v", err)
	}

	taskClient.Register(
		tasks.NewOverdueSweepQueue(ledger, auditService),
		tasks.NewCleanupAuditEventsQueue(auditService),
	)

	taskCtx, cancel := context.WithCancel(context.Background())
	go taskClient.Start(taskCtx)

	if !cfg.Schedules.Enabled {
		return taskClient, nil, cancel
	}

	sched := scheduler.New(taskClient, cfg.Schedules, cfg.Audit)
	if err := sched.Start(taskCtx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	return taskClient, sched, cancel
}

// csrfSecretFrom decodes a hex session secret, falls back to the raw bytes for
// non-hex values and generates a fresh secret when none is configured.
func csrfSecretFrom(configured string) ([]byte, error) {
	if configured != "" {
		if secret, err := hex.DecodeString(configured); err == nil {
			return secret, nil
		}
		return []byte(configured), nil
	}

	secret, err := auth.GenerateSessionSecret()
	if err != nil {
		return nil, err
	}
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return hex.DecodeString(secret)
}
