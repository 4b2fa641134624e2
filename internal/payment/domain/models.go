// Package domain contains payment records applied against issued invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Payment is one amount applied against an invoice. Rows are append-only:
// a mistaken payment is corrected by voiding the invoice and reissuing, not
// by editing history.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`

	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:text;not null" json:"currency"`

	Method    string `gorm:"type:text;not null;default:'other'" json:"method"`
	Reference string `gorm:"type:text" json:"reference,omitempty"`

	RecordedBy string    `gorm:"type:text" json:"recorded_by,omitempty"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
