// Package domain defines the public verification surface: the unauthenticated
// trust-anchor lookup that lets any third party confirm a sealed document's
// integrity from its frozen snapshot.
package domain

import (
	"context"
	"time"

	"github.com/veribill/veribill/internal/domainerr"
)

// DocumentType distinguishes the verifiable entities.
type DocumentType string

const (
	DocumentInvoice    DocumentType = "invoice"
	DocumentCreditNote DocumentType = "credit_note"
)

// RedactedSnapshot is the minimal projection returned to third parties.
// Only frozen snapshot data appears here, never live records.
type RedactedSnapshot struct {
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	IssuerName     string       `json:"issuer_name"`
	CounterpartName string      `json:"counterpart_name,omitempty"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
	IssuedAt       time.Time    `json:"issued_at"`
}

// ResolveResult is the outcome of one verification lookup.
type ResolveResult struct {
	Verified       bool              `json:"verified"`
	IntegrityValid bool              `json:"integrity_valid"`
	Snapshot       *RedactedSnapshot `json:"snapshot,omitempty"`
}

// Resolver recomputes a document's hash from its frozen snapshot and compares
// it to the sealed value. Lookup is strictly by verification token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (ResolveResult, error)
}

var (
	ErrNotVerified       = domainerr.Wrap(domainerr.ErrNotFound, "not_verified")
	ErrIntegrityMismatch = domainerr.Wrap(domainerr.ErrIntegrityMismatch, "document_integrity_mismatch")
)
