package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VerifyRateLimit throttles the public verification endpoint per client
// address. A Redis outage fails open.
func (s *Server) VerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.verifyLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("verify rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// VerifyDocument resolves a verification token to a redacted snapshot and an
// integrity verdict. No authentication: the token is the capability.
func (s *Server) VerifyDocument(c *gin.Context) {
	token := c.Param("token")

	result, err := s.verificationSvc.Resolve(c.Request.Context(), token)
	if err != nil {
		s.metrics.VerificationLookup("not_found")
		AbortWithError(c, err)
		return
	}

	if result.IntegrityValid {
		s.metrics.VerificationLookup("verified")
	} else {
		s.metrics.VerificationLookup("integrity_mismatch")
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
