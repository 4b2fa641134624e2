package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veribill/veribill/internal/authorization"
	"github.com/veribill/veribill/internal/ownercontext"
)

type assignRoleBody struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// AssignBusinessRole grants or changes a member's role. The route is gated
// on membership.manage within the request's business scope; the path id
// must match that scope.
func (s *Server) AssignBusinessRole(c *gin.Context) {
	businessID, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	owner, ok := ownercontext.OwnerFromContext(c.Request.Context())
	if !ok || owner.BusinessID == nil || *owner.BusinessID != businessID {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	var body assignRoleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	userID, err := parsePathID(body.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid user id"))
		return
	}

	member, err := s.authzSvc.AssignRole(c.Request.Context(), authorization.AssignRoleRequest{
		BusinessID: businessID,
		UserID:     userID,
		Role:       body.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}
