package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/auth"
	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/database"
	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/catalog"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/database/users"
	"github.com/mrlokans/lending/internal/entities"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var epoch = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testServer struct {
	server  *Server
	db      *gorm.DB
	auditor *audit.Service
	clock   *testClock

	admin       entities.User
	member      entities.User
	adminToken  string
	memberToken string
}

func setupTestServer(t *testing.T, mode config.AuthMode) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(filepath.Join(t.TempDir(), "api.db"))), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	ts := &testServer{db: db, clock: &testClock{now: epoch}}
	ts.auditor = audit.NewService(auditRepo.NewRepository(db))
	t.Cleanup(func() {
		ts.auditor.Wait()
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	authCfg := config.Auth{Mode: mode, BcryptCost: bcrypt.MinCost, TokenExpiry: 24 * time.Hour}
	authService := auth.NewService(users.NewRepository(db), authCfg)

	ctx := context.Background()
	admin, err := authService.CreateUser(ctx, "librarian", "librarian@example.com", "correct horse battery", entities.UserRoleAdmin)
	require.NoError(t, err)
	member, err := authService.CreateUser(ctx, "reader", "reader@example.com", "correct horse battery", entities.UserRoleMember)
	require.NoError(t, err)
	ts.admin, ts.member = *admin, *member

	cfg := RouterConfig{
		Books:    books.NewRepository(db),
		Catalog:  catalog.NewRepository(db),
		Ledger:   loans.NewLedger(db, loans.WithClock(ts.clock.Now)),
		Auditor:  ts.auditor,
		AuditLog: ts.auditor,
		Version:  "test",
	}
	if mode == config.AuthModeLocal {
		ts.adminToken, err = authService.GenerateToken(ctx, admin.ID)
		require.NoError(t, err)
		ts.memberToken, err = authService.GenerateToken(ctx, member.ID)
		require.NoError(t, err)

		cfg.AuthService = authService
		cfg.AuthMiddleware = auth.NewMiddleware(authService, nil, authCfg)
		cfg.AuthConfig = authCfg
	}

	ts.server = NewRouter(cfg)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (ts *testServer) createRef(t *testing.T, path, name string) uint {
	t.Helper()
	w := ts.do(t, http.MethodPost, path, gin.H{"name": name}, ts.adminToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(decode(t, w)["id"].(float64))
}

// createBook creates a book with fresh author, publisher and one category.
func (ts *testServer) createBook(t *testing.T, title, isbn string, stock int) uint {
	t.Helper()
	authorID := ts.createRef(t, "/api/authors", "Author of "+title)
	publisherID := ts.createRef(t, "/api/publishers", "Publisher of "+title)
	categoryID := ts.createRef(t, "/api/categories", "Shelf "+isbn)

	w := ts.do(t, http.MethodPost, "/api/books", gin.H{
		"title":          title,
		"isbn":           isbn,
		"published_date": "1965-08-01",
		"stock":          stock,
		"author_id":      authorID,
		"publisher_id":   publisherID,
		"category_ids":   []uint{categoryID},
	}, ts.adminToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(decode(t, w)["id"].(float64))
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)

	w := ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = ts.do(t, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, "pong", w.Body.String())
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	id := "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f"

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", id)
	w := httptest.NewRecorder()
	ts.server.Router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "<script>")
	w = httptest.NewRecorder()
	ts.server.Router.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Header().Get("X-Request-ID"))
}

func TestCatalogWritesRequireAdmin(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)

	w := ts.do(t, http.MethodPost, "/api/authors", gin.H{"name": "Someone"}, ts.memberToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/api/authors", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	id := ts.createRef(t, "/api/authors", "Ursula K. Le Guin")

	w = ts.do(t, http.MethodPost, "/api/authors", gin.H{"name": "ursula k. le guin"}, ts.adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["error"])

	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/authors/%d", id), gin.H{"name": "U. K. Le Guin"}, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/authors", nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/authors/%d", id), nil, ts.adminToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/authors/%d", id), nil, ts.adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBooks_CreateSearchAndUpdate(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	dune := ts.createBook(t, "Dune", "9780441013593", 3)
	ts.createBook(t, "Dune Messiah", "9780441172696", 1)
	ts.createBook(t, "Hyperion", "9780553283686", 2)

	w := ts.do(t, http.MethodGet, "/api/books?title=dune&sort=stock&order=desc&page_size=1", nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.EqualValues(t, 2, page["total_count"])
	assert.EqualValues(t, 2, page["total_pages"])
	items := page["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Dune", items[0].(map[string]any)["title"])

	w = ts.do(t, http.MethodGet, "/api/books?published_from=not-a-date", nil, ts.memberToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/books/%d", dune), nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code)
	book := decode(t, w)
	authorID := book["author_id"]
	publisherID := book["publisher_id"]
	categories := book["categories"].([]any)
	categoryID := categories[0].(map[string]any)["id"]

	update := gin.H{
		"title":        "Dune",
		"isbn":         "9780441013593",
		"stock":        1,
		"author_id":    authorID,
		"publisher_id": publisherID,
		"category_ids": []any{categoryID},
	}
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d", dune), update, ts.adminToken)
	assert.Equal(t, http.StatusConflict, w.Code, "stock below available")
	assert.Equal(t, "stock_below_available", decode(t, w)["error"])

	update["available"] = 1
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d", dune), update, ts.adminToken)
	assert.Equal(t, http.StatusConflict, w.Code, "lowering available alongside stock")
	assert.Equal(t, "stock_below_available", decode(t, w)["error"])

	update["stock"] = 5
	update["available"] = 3
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d", dune), update, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 5, decode(t, w)["stock"])

	update["available"] = 6
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d", dune), update, ts.adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code, "available above stock")
	assert.Equal(t, "available_exceeds_stock", decode(t, w)["error"])
}

func TestBooks_ReconcileReportsMissingCategories(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	id := ts.createBook(t, "Dune", "9780441013593", 1)

	w := ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d/categories", id), gin.H{"category_ids": []uint{404, 405}}, ts.adminToken)
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, "category_not_found", body["error"])
	details := body["details"].(map[string]any)
	assert.ElementsMatch(t, []any{404.0, 405.0}, details["missing_category_ids"])

	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d/categories", id), gin.H{"category_ids": []uint{}}, ts.adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "category_required", decode(t, w)["error"])

	fresh := ts.createRef(t, "/api/categories", "Classics")
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d/categories", id), gin.H{"category_ids": []uint{fresh}}, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Len(t, res["added"], 1)
	assert.Len(t, res["removed"], 1)
}

func TestLoans_BorrowReturnLateWithFine(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	bookID := ts.createBook(t, "Dune", "9780441013593", 1)

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), nil, ts.memberToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode(t, w)
	loanID := uint(loan["id"].(float64))
	assert.EqualValues(t, ts.member.ID, loan["user_id"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), nil, ts.adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_copies_available", decode(t, w)["error"])

	ts.clock.Set(epoch.AddDate(0, 1, 3).Add(time.Hour))

	w = ts.do(t, http.MethodGet, "/api/loans/overdue?as_of=2024-04-14", nil, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	overdue := decode(t, w)["data"].([]any)
	require.Len(t, overdue, 1)
	assert.EqualValues(t, 3, overdue[0].(map[string]any)["days_late"])
	assert.Equal(t, "1.5", overdue[0].(map[string]any)["provisional_fine"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/return", bookID), nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Contains(t, res["message"], "3 day(s) late")
	fine := res["fine"].(map[string]any)
	assert.Equal(t, "1.5", fine["amount"])

	w = ts.do(t, http.MethodGet, "/api/fines?status=unpaid", nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%d/fine/pay", loanID), nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%d/fine/pay", loanID), nil, ts.memberToken)
	assert.Equal(t, http.StatusNotFound, w.Code, "a fine is paid once")

	w = ts.do(t, http.MethodGet, "/api/loans?status=closed", nil, ts.memberToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(t, http.MethodGet, "/api/loans?status=lost", nil, ts.memberToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.auditor.Wait()
	w = ts.do(t, http.MethodGet, "/api/audit?event_type=loan", nil, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["total"], "borrow and return")

	w = ts.do(t, http.MethodGet, "/api/audit", nil, ts.memberToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoans_ActingOnBehalf(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	bookID := ts.createBook(t, "Dune", "9780441013593", 2)

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), gin.H{"user_id": ts.admin.ID}, ts.memberToken)
	assert.Equal(t, http.StatusForbidden, w.Code, "members cannot borrow for others")

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), gin.H{"user_id": ts.member.ID, "due_date": "2024-03-20"}, ts.adminToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode(t, w)
	assert.EqualValues(t, ts.member.ID, loan["user_id"])
	assert.Equal(t, "2024-03-20T00:00:00Z", loan["due_date"])

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/loans?user_id=%d", ts.member.ID), nil, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", uint(loan["id"].(float64))), nil, ts.adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code, "the admin holds no such loan")
}

func TestLoans_NoAuthModeRequiresUserID(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeNone)

	author := ts.createRef(t, "/api/authors", "Frank Herbert")
	publisher := ts.createRef(t, "/api/publishers", "Chilton")
	category := ts.createRef(t, "/api/categories", "Fiction")
	w := ts.do(t, http.MethodPost, "/api/books", gin.H{
		"title": "Dune", "isbn": "9780441013593", "stock": 1,
		"author_id": author, "publisher_id": publisher, "category_ids": []uint{category},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bookID := uint(decode(t, w)["id"].(float64))

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user_id_required", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), gin.H{"user_id": 999}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user_not_found", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), gin.H{"user_id": ts.member.ID}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/return", bookID), gin.H{"user_id": ts.member.ID}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Book returned on time.", decode(t, w)["message"])
}

func TestDeleteBookWithOpenLoanConflicts(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	bookID := ts.createBook(t, "Dune", "9780441013593", 1)

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), nil, ts.memberToken)
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/books/%d", bookID), nil, ts.adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "open_loans", decode(t, w)["error"])
}

func TestLoans_GetLoanAndBookLoans(t *testing.T) {
	ts := setupTestServer(t, config.AuthModeLocal)
	bookID := ts.createBook(t, "Dune", "9780441013593", 2)

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), nil, ts.adminToken)
	require.Equal(t, http.StatusCreated, w.Code)
	adminLoan := uint(decode(t, w)["id"].(float64))

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/loans/%d", adminLoan), nil, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dune", decode(t, w)["book"].(map[string]any)["title"])

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/loans/%d", adminLoan), nil, ts.memberToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/books/%d/loans", bookID), nil, ts.adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/books/%d/loans", bookID), nil, ts.memberToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
