package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/ownercontext"
)

type lineItemBody struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
	Amount      int64   `json:"amount"`
}

type createInvoiceBody struct {
	ClientID   string  `json:"client_id" binding:"required"`
	TemplateID *string `json:"template_id"`

	Currency       string `json:"currency" binding:"required"`
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discount_amount"`
	TaxAmount      int64  `json:"tax_amount"`
	TotalAmount    int64  `json:"total_amount"`

	IssueDate *time.Time `json:"issue_date"`
	DueDate   *time.Time `json:"due_date"`

	Items []lineItemBody `json:"items"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var body createInvoiceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	clientID, err := parsePathID(body.ClientID)
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client id"))
		return
	}

	owner, ok := ownercontext.OwnerFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req := invoicedomain.CreateInvoiceRequest{
		Owner:          owner,
		ClientID:       clientID,
		Currency:       body.Currency,
		Subtotal:       body.Subtotal,
		DiscountAmount: body.DiscountAmount,
		TaxAmount:      body.TaxAmount,
		TotalAmount:    body.TotalAmount,
		IssueDate:      body.IssueDate,
		DueDate:        body.DueDate,
		Items:          toLineItems(body.Items),
	}
	if body.TemplateID != nil {
		templateID, err := parseOptionalSnowflakeID(*body.TemplateID)
		if err != nil {
			AbortWithError(c, newValidationError("template_id", "invalid_id", "invalid template id"))
			return
		}
		req.TemplateID = templateID
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

type updateInvoiceBody struct {
	ClientID   *string `json:"client_id"`
	TemplateID *string `json:"template_id"`

	Currency       *string `json:"currency"`
	Subtotal       *int64  `json:"subtotal"`
	DiscountAmount *int64  `json:"discount_amount"`
	TaxAmount      *int64  `json:"tax_amount"`
	TotalAmount    *int64  `json:"total_amount"`

	IssueDate *time.Time `json:"issue_date"`
	DueDate   *time.Time `json:"due_date"`

	Items *[]lineItemBody `json:"items"`
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var body updateInvoiceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	req := invoicedomain.UpdateInvoiceRequest{
		Currency:       body.Currency,
		Subtotal:       body.Subtotal,
		DiscountAmount: body.DiscountAmount,
		TaxAmount:      body.TaxAmount,
		TotalAmount:    body.TotalAmount,
		IssueDate:      body.IssueDate,
		DueDate:        body.DueDate,
	}
	if body.ClientID != nil {
		clientID, err := parseOptionalSnowflakeID(*body.ClientID)
		if err != nil {
			AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client id"))
			return
		}
		req.ClientID = clientID
	}
	if body.TemplateID != nil {
		templateID, err := parseOptionalSnowflakeID(*body.TemplateID)
		if err != nil {
			AbortWithError(c, newValidationError("template_id", "invalid_id", "invalid template id"))
			return
		}
		req.TemplateID = templateID
	}
	if body.Items != nil {
		items := toLineItems(*body.Items)
		req.Items = &items
	}

	invoice, err := s.invoiceSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.invoiceSvc.Issue(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.InvoiceIssued()

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkInvoiceSent(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	if err := s.invoiceSvc.MarkSent(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkInvoiceViewed is public: the recipient's browser calls it from the
// emailed invoice page. Unknown ids 404 without leaking anything else.
func (s *Server) MarkInvoiceViewed(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	if err := s.invoiceSvc.MarkViewed(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ListInvoiceItems(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	items, err := s.invoiceSvc.Items(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest

	if raw := c.Query("status"); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		if !status.Valid() {
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
		req.Status = &status
	}

	clientID, err := parseOptionalSnowflakeID(c.Query("client_id"))
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client id"))
		return
	}
	req.ClientID = clientID

	from, err := parseOptionalTime(c.Query("created_from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_time", "invalid time"))
		return
	}
	req.CreatedFrom = from

	to, err := parseOptionalTime(c.Query("created_to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_time", "invalid time"))
		return
	}
	req.CreatedTo = to

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices})
}

func toLineItems(items []lineItemBody) []invoicedomain.LineItemInput {
	out := make([]invoicedomain.LineItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, invoicedomain.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Amount:      item.Amount,
		})
	}
	return out
}
