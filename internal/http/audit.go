package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/entities"
)

const maxAuditLimit = 200

type AuditController struct {
	events AuditReader
}

func NewAuditController(events AuditReader) *AuditController {
	return &AuditController{events: events}
}

// List returns audit events, newest first. Supports user_id, event_type,
// entity_type, entity_id, since, before, limit and offset.
func (ac *AuditController) List(c *gin.Context) {
	var f auditRepo.Filter
	var ok bool
	if f.UserID, ok = parseOptionalQueryID(c, "user_id"); !ok {
		return
	}
	if f.EntityID, ok = parseOptionalQueryID(c, "entity_id"); !ok {
		return
	}
	f.EventType = entities.AuditEventType(c.Query("event_type"))
	f.EntityType = c.Query("entity_type")

	since, err := parseOptionalDate(c.Query("since"))
	if err != nil {
		respondBadRequest(c, "since: "+err.Error())
		return
	}
	if since != nil {
		f.Since = *since
	}
	before, err := parseOptionalDate(c.Query("before"))
	if err != nil {
		respondBadRequest(c, "before: "+err.Error())
		return
	}
	if before != nil {
		f.Before = *before
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		respondBadRequest(c, "invalid limit")
		return
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		respondBadRequest(c, "invalid offset")
		return
	}

	events, total, err := ac.events.GetEvents(c.Request.Context(), f, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    events,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(events)) < total,
	})
}
