package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	retentiondomain "github.com/veribill/veribill/internal/retention/domain"
)

func (s *Server) ListRetentionPolicies(c *gin.Context) {
	resolutions, err := s.retentionSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolutions})
}

type setRetentionPolicyBody struct {
	Jurisdiction   string `json:"jurisdiction" binding:"required"`
	EntityType     string `json:"entity_type" binding:"required"`
	RetentionYears int    `json:"retention_years" binding:"required"`
	LegalBasis     string `json:"legal_basis"`
}

func (s *Server) SetRetentionPolicy(c *gin.Context) {
	var body setRetentionPolicyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	policy, err := s.retentionSvc.SetPolicy(c.Request.Context(), retentiondomain.SetPolicyRequest{
		Jurisdiction:   body.Jurisdiction,
		EntityType:     body.EntityType,
		RetentionYears: body.RetentionYears,
		LegalBasis:     body.LegalBasis,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": policy})
}

// ResolveRetention answers the compliance question directly: what floor
// applies, and when may a record created at some instant legally be deleted.
func (s *Server) ResolveRetention(c *gin.Context) {
	jurisdiction := strings.TrimSpace(c.Query("jurisdiction"))
	entityType := strings.TrimSpace(c.Query("entity_type"))
	if jurisdiction == "" || entityType == "" {
		AbortWithError(c, newValidationError("jurisdiction", "required", "jurisdiction and entity_type are required"))
		return
	}

	resolution, err := s.retentionSvc.Resolve(c.Request.Context(), jurisdiction, entityType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payload := gin.H{"resolution": resolution}

	createdAt, err := parseOptionalTime(c.Query("created_at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("created_at", "invalid_time", "invalid time"))
		return
	}
	if createdAt != nil {
		earliest, err := s.retentionSvc.EarliestDeletion(c.Request.Context(), jurisdiction, entityType, *createdAt)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		deletable := s.retentionSvc.CheckDeletable(c.Request.Context(), jurisdiction, entityType, *createdAt) == nil
		payload["earliest_deletion"] = earliest
		payload["deletable"] = deletable
	}

	c.JSON(http.StatusOK, gin.H{"data": payload})
}
