package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/veribill/veribill/internal/actorcontext"
	"github.com/veribill/veribill/internal/observability"
	"github.com/veribill/veribill/internal/ownercontext"
)

// Identity headers set by the edge proxy after authentication. This service
// trusts them the way the audit trail needs them: verbatim.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderActorType = "X-Actor-Type"
	HeaderActorID   = "X-Actor-ID"
	HeaderBusiness  = "X-Business-ID"
)

// RequestContext stamps every request with an id and copies the caller's
// identity and network metadata into the context the audit trail reads.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = ulid.Make().String()
		}
		c.Header(HeaderRequestID, requestID)

		ctx := c.Request.Context()
		ctx = actorcontext.WithRequestID(ctx, requestID)
		ctx = actorcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = actorcontext.WithUserAgent(ctx, c.Request.UserAgent())

		actorType := strings.TrimSpace(c.GetHeader(HeaderActorType))
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorType != "" {
			ctx = actorcontext.WithActor(ctx, actorType, actorID)
		}

		if owner, ok := ownerScope(c, actorType, actorID); ok {
			ctx = ownercontext.WithOwner(ctx, owner)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ownerScope resolves the invoice-owner scope of the request: an explicit
// business header wins, otherwise a user actor acts in their own scope.
func ownerScope(c *gin.Context, actorType, actorID string) (ownercontext.Owner, bool) {
	if raw := strings.TrimSpace(c.GetHeader(HeaderBusiness)); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return ownercontext.Owner{}, false
		}
		return ownercontext.BusinessOwner(id), true
	}
	if actorType == "user" {
		id, err := snowflake.ParseString(actorID)
		if err != nil || id == 0 {
			return ownercontext.Owner{}, false
		}
		return ownercontext.UserOwner(id), true
	}
	return ownercontext.Owner{}, false
}

// ActorRequired rejects requests the edge forwarded without an identity.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorType, actorID := actorcontext.ActorFromContext(c.Request.Context())
		switch actorType {
		case "system":
			c.Next()
		case "user":
			if strings.TrimSpace(actorID) == "" {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Next()
		default:
			AbortWithError(c, ErrUnauthorized)
		}
	}
}

// authorize gates a route on the actor's role within the request's owner scope.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		actorType, actorID := actorcontext.ActorFromContext(ctx)
		actor := actorType
		if actorType == "user" {
			actor = "user:" + actorID
		}

		owner, ok := ownercontext.OwnerFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		scope := "user:" + actorID
		if owner.BusinessID != nil {
			scope = "business:" + owner.BusinessID.String()
		} else if owner.UserID != nil {
			scope = "user:" + owner.UserID.String()
		}

		if err := s.authzSvc.Authorize(ctx, actor, scope, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route template.
func MetricsMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveAPIRequest(
			c.Request.Method,
			route,
			statusClass(c.Writer.Status()),
			time.Since(start),
		)
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
