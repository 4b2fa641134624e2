package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	paymentdomain "github.com/veribill/veribill/internal/payment/domain"
)

type recordPaymentBody struct {
	Amount    int64  `json:"amount" binding:"required"`
	Currency  string `json:"currency" binding:"required"`
	Method    string `json:"method"`
	Reference string `json:"reference"`

	ReceivedAt *time.Time `json:"received_at"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	invoiceID, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var body recordPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	resp, err := s.paymentSvc.Record(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		InvoiceID:  invoiceID,
		Amount:     body.Amount,
		Currency:   body.Currency,
		Method:     body.Method,
		Reference:  body.Reference,
		ReceivedAt: body.ReceivedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.PaymentRecorded(body.Amount)

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	invoiceID, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	payments, err := s.paymentSvc.ListByInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}
