package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	creditnotedomain "github.com/veribill/veribill/internal/creditnote/domain"
)

type voidInvoiceBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) VoidInvoice(c *gin.Context) {
	invoiceID, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var body voidInvoiceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("reason", "required", "void reason is required"))
		return
	}

	resp, err := s.creditNoteSvc.Void(c.Request.Context(), creditnotedomain.VoidInvoiceRequest{
		InvoiceID: invoiceID,
		Reason:    body.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.InvoiceVoided()

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCreditNoteByInvoice(c *gin.Context) {
	invoiceID, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	note, err := s.creditNoteSvc.GetByInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": note})
}
