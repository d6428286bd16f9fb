// Package auth identifies who is borrowing, returning and paying.
//
// It supports two authentication modes:
//   - "none": No authentication; every request acts as DefaultUserID and
//     lending endpoints name the member explicitly with user_id
//   - "local": Local user database with session cookies and Bearer tokens (default)
//
// # Configuration
//
//	AUTH_MODE=local                        # or none
//	AUTH_SESSION_SECRET=<hex-32-bytes>     # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h              # Session duration
//	AUTH_TOKEN_EXPIRY=720h                 # API token expiry (30 days default)
//	AUTH_BCRYPT_COST=12                    # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true               # HTTPS-only cookies
//
// # Roles
//
// Admins (librarians) manage the catalog and may act on behalf of any
// member. Members borrow, return and pay their own fines.
//
// # Usage
//
//	authService := auth.NewService(userRepo, cfg.Auth)
//	authMiddleware := auth.NewMiddleware(authService, sessionManager, cfg.Auth)
//	router.Use(authMiddleware.Handler())
//
// Extract the caller in handlers:
//
//	userID := auth.GetUserID(c)  // Returns DefaultUserID in "none" mode
package auth
