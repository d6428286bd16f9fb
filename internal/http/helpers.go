package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/auth"
	"github.com/mrlokans/lending/internal/liberr"
)

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`             // machine-readable error code
	Message string `json:"message"`           // human-readable description
	Details any    `json:"details,omitempty"` // additional context (missing ids, etc.)
}

// ListResponse wraps an unpaginated list.
type ListResponse struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

// PaginatedResponse wraps a page of audit events with offset metadata.
type PaginatedResponse struct {
	Data    any   `json:"data"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

var (
	errUserIDRequired = liberr.Validation("user_id_required", "user_id is required when authentication is disabled")
	errActOnBehalf    = liberr.Forbidden("forbidden", "only admins may act on behalf of another user")
)

// --- Error Response Helpers ---

// respondError maps err to a status code through its kind. Unclassified
// errors are logged and reported as a generic internal error.
func respondError(c *gin.Context, err error) {
	e, ok := liberr.As(err)
	if !ok {
		respondInternalError(c, err)
		return
	}
	c.JSON(liberr.HTTPStatus(err), ErrorResponse{Error: e.Code, Message: e.Message, Details: e.Details})
}

// respondBadRequest sends a 400 response for malformed input.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: liberr.ErrInvalidInput.Code, Message: message})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error) {
	log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal server error"})
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalQueryID reads an optional id from the query string.
func parseOptionalQueryID(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New("dates must be YYYY-MM-DD or RFC 3339")
}

// bindJSON decodes the request body, answering 400 on failure. An empty body
// is accepted for endpoints whose fields are all optional.
func bindJSON(c *gin.Context, dest any, allowEmpty bool) bool {
	if allowEmpty && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		respondBadRequest(c, err.Error())
		return false
	}
	return true
}

// --- Caller Resolution ---

// resolveUserID picks the member a lending operation acts for. The caller
// acts for themselves unless they name another user, which only admins may
// do. With authentication disabled the member must always be named.
func resolveUserID(c *gin.Context, requested uint) (uint, error) {
	if auth.GetAuthType(c) == auth.AuthTypeNone {
		if requested == 0 {
			return 0, errUserIDRequired
		}
		return requested, nil
	}

	caller := auth.GetUserID(c)
	if requested == 0 || requested == caller {
		return caller, nil
	}
	if !auth.IsAdmin(c) {
		return 0, errActOnBehalf
	}
	return requested, nil
}

// actor builds the audit actor for the current request.
func actor(c *gin.Context) audit.Actor {
	return auth.ActorFromContext(c)
}
