// Package domain contains credit notes, the reversal documents minted when
// an issued invoice is voided.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreditNote reverses one voided invoice in full. It carries its own number,
// content hash, and verification token; the unique index on InvoiceID is the
// database's word that an invoice is voided at most once.
type CreditNote struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;uniqueIndex" json:"invoice_id"`

	CreditNoteNumber string `gorm:"type:text;not null" json:"credit_note_number"`
	Amount           int64  `gorm:"not null" json:"amount"`
	Currency         string `gorm:"type:text;not null" json:"currency"`
	Reason           string `gorm:"type:text;not null" json:"reason"`

	CreditNoteHash string  `gorm:"type:text;not null" json:"credit_note_hash"`
	VerificationID *string `gorm:"type:text;uniqueIndex" json:"-"`

	IssuedAt  time.Time `gorm:"not null" json:"issued_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (CreditNote) TableName() string { return "credit_notes" }
