package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veribill/veribill/internal/currency"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
)

// GetRevenueSummary totals the owner's invoices in a reporting currency.
// Exchange rates come from the caller ("rates=EUR:1.08,NGN:0.00065"); amounts
// in currencies without a rate are counted but excluded from the total, and
// the response says so.
func (s *Server) GetRevenueSummary(c *gin.Context) {
	primary := strings.TrimSpace(c.DefaultQuery("currency", "USD"))

	rates, err := parseRates(c.Query("rates"))
	if err != nil {
		AbortWithError(c, newValidationError("rates", "invalid_rates", "invalid rates"))
		return
	}

	var req invoicedomain.ListInvoiceRequest
	if raw := c.Query("status"); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		if !status.Valid() {
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
		req.Status = &status
	}
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

	entries := make([]currency.Entry, 0, len(resp.Invoices))
	for _, invoice := range resp.Invoices {
		entry := currency.Entry{
			Amount:   float64(invoice.TotalAmount),
			Currency: invoice.Currency,
		}
		if rate, ok := rates[strings.ToUpper(invoice.Currency)]; ok {
			entry.RateToPrimary = &rate
		}
		entries = append(entries, entry)
	}

	result := currency.Aggregate(entries, primary)

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func parseRates(raw string) (map[string]float64, error) {
	rates := make(map[string]float64)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		code, value, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, errors.New("invalid_rates")
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate <= 0 {
			return nil, errors.New("invalid_rates")
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}
