// Package integrity computes the content hash sealed into issued documents.
//
// The hash is a SHA-256 digest over a canonical, pipe-delimited concatenation
// of a document's frozen identity fields. The field order is fixed and part of
// the wire contract; any change to it requires bumping AlgorithmVersion, which
// is itself folded into the digest.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// AlgorithmVersion marks the canonical field order in use.
const AlgorithmVersion = "v1"

// DocumentKind distinguishes the sealed document types sharing the algorithm.
type DocumentKind string

const (
	KindInvoice    DocumentKind = "invoice"
	KindCreditNote DocumentKind = "credit_note"
)

// Canonical is the ordered set of fields covered by the digest.
// Zero-valued optional references serialize as an empty segment so that the
// presence or absence of a link always changes the digest. IssuedAt is
// truncated to microseconds, the precision TIMESTAMPTZ stores, so the digest
// survives a database round trip.
type Canonical struct {
	Kind      DocumentKind
	Number    string
	InvoiceID snowflake.ID
	PaymentID snowflake.ID
	Amount    int64
	Currency  string
	IssuedAt  time.Time
}

// ComputeHash returns the lowercase hex SHA-256 digest of the canonical form.
// Pure and deterministic: no clock, locale, or other ambient state is read.
func ComputeHash(c Canonical) string {
	sum := sha256.Sum256([]byte(canonicalString(c)))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest and compares it to the stored value.
func Verify(c Canonical, storedHash string) bool {
	return ComputeHash(c) == strings.ToLower(strings.TrimSpace(storedHash))
}

func canonicalString(c Canonical) string {
	segments := []string{
		AlgorithmVersion,
		string(c.Kind),
		c.Number,
		idSegment(c.InvoiceID),
		idSegment(c.PaymentID),
		strconv.FormatInt(c.Amount, 10),
		strings.ToUpper(strings.TrimSpace(c.Currency)),
		c.IssuedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	}
	return strings.Join(segments, "|")
}

func idSegment(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
