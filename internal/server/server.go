package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/authorization"
	"github.com/veribill/veribill/internal/config"
	creditnotedomain "github.com/veribill/veribill/internal/creditnote/domain"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/observability"
	paymentdomain "github.com/veribill/veribill/internal/payment/domain"
	"github.com/veribill/veribill/internal/ratelimit"
	retentiondomain "github.com/veribill/veribill/internal/retention/domain"
	verificationdomain "github.com/veribill/veribill/internal/verification/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, metrics *observability.Metrics) *gin.Engine {
	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestContext())
	r.Use(MetricsMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	genID  *snowflake.Node

	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	creditNoteSvc   creditnotedomain.Service
	verificationSvc verificationdomain.Resolver
	retentionSvc    retentiondomain.Service
	auditSvc        auditdomain.Recorder
	authzSvc        authorization.Service

	verifyLimiter *ratelimit.VerifyLimiter
	metrics       *observability.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger
	GenID *snowflake.Node

	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	CreditNoteSvc   creditnotedomain.Service
	VerificationSvc verificationdomain.Resolver
	RetentionSvc    retentiondomain.Service
	AuditSvc        auditdomain.Recorder
	AuthzSvc        authorization.Service

	VerifyLimiter *ratelimit.VerifyLimiter
	Metrics       *observability.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		genID:           p.GenID,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		creditNoteSvc:   p.CreditNoteSvc,
		verificationSvc: p.VerificationSvc,
		retentionSvc:    p.RetentionSvc,
		auditSvc:        p.AuditSvc,
		authzSvc:        p.AuthzSvc,
		verifyLimiter:   p.VerifyLimiter,
		metrics:         p.Metrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterPublicRoutes()
}

// RegisterAPIRoutes mounts the authenticated surface. Authentication itself
// happens upstream; the edge proxy forwards the verified identity in headers
// and this layer enforces scope membership and role capabilities.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/v1")
	api.Use(s.ActorRequired())

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	api.GET("/invoices/summary", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetRevenueSummary)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.PATCH("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceUpdate), s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceDelete), s.DeleteInvoice)
	api.GET("/invoices/:id/items", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoiceItems)
	api.POST("/invoices/:id/issue", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceIssue), s.IssueInvoice)
	api.POST("/invoices/:id/send", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceSend), s.MarkInvoiceSent)
	api.POST("/invoices/:id/void", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.VoidInvoice)

	// -------- Payments --------
	api.GET("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListInvoicePayments)
	api.POST("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)

	// -------- Credit Notes --------
	api.GET("/invoices/:id/credit-note", s.authorize(authorization.ObjectCreditNote, authorization.ActionCreditNoteView), s.GetCreditNoteByInvoice)

	// -------- Audit Trail --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	// -------- Retention --------
	api.GET("/retention-policies", s.authorize(authorization.ObjectRetentionPolicy, authorization.ActionRetentionPolicyView), s.ListRetentionPolicies)
	api.PUT("/retention-policies", s.authorize(authorization.ObjectRetentionPolicy, authorization.ActionRetentionPolicyManage), s.SetRetentionPolicy)
	api.GET("/retention-policies/resolve", s.authorize(authorization.ObjectRetentionPolicy, authorization.ActionRetentionPolicyView), s.ResolveRetention)

	// -------- Membership --------
	api.POST("/businesses/:id/members", s.authorize(authorization.ObjectMembership, authorization.ActionMembershipManage), s.AssignBusinessRole)
}

// RegisterPublicRoutes mounts the unauthenticated surface. Verification is
// reachable by anyone holding a token; recipient view tracking rides on the
// invoice id embedded in the emailed link.
func (s *Server) RegisterPublicRoutes() {
	public := s.engine.Group("/v1/public")

	public.GET("/verify/:token", s.VerifyRateLimit(), s.VerifyDocument)
	public.POST("/invoices/:id/viewed", s.MarkInvoiceViewed)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Fatal("http server failed", zap.Error(err))
				}
			}()
			s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
