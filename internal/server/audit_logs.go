package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/pkg/db/pagination"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_pagination", "invalid pagination"))
		return
	}

	req := auditdomain.ListAuditLogRequest{
		Pagination: page,
		EventType:  c.Query("event_type"),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		ActorType:  c.Query("actor_type"),
	}

	startAt, err := parseOptionalTime(c.Query("start_at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_time", "invalid time"))
		return
	}
	req.StartAt = startAt

	endAt, err := parseOptionalTime(c.Query("end_at"), true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_time", "invalid time"))
		return
	}
	req.EndAt = endAt

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.AuditLogs,
		"page_info": resp.PageInfo,
	})
}
