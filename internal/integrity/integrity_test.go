package integrity

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func baseCanonical() Canonical {
	issuedAt := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return Canonical{
		Kind:      KindInvoice,
		Number:    "INV-0042",
		InvoiceID: snowflake.ID(1234567890),
		Amount:    107500,
		Currency:  "NGN",
		IssuedAt:  issuedAt,
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	c := baseCanonical()

	first := ComputeHash(c)
	second := ComputeHash(c)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeHashFieldSensitivity(t *testing.T) {
	base := ComputeHash(baseCanonical())

	mutations := map[string]func(*Canonical){
		"kind":       func(c *Canonical) { c.Kind = KindCreditNote },
		"number":     func(c *Canonical) { c.Number = "INV-0043" },
		"invoice_id": func(c *Canonical) { c.InvoiceID = snowflake.ID(999) },
		"payment_id": func(c *Canonical) { c.PaymentID = snowflake.ID(1) },
		"amount":     func(c *Canonical) { c.Amount = 107501 },
		"currency":   func(c *Canonical) { c.Currency = "USD" },
		"issued_at":  func(c *Canonical) { c.IssuedAt = c.IssuedAt.Add(time.Second) },
	}

	for name, mutate := range mutations {
		c := baseCanonical()
		mutate(&c)
		assert.NotEqual(t, base, ComputeHash(c), "mutating %s must change the digest", name)
	}
}

func TestComputeHashNormalizesCurrencyAndTimezone(t *testing.T) {
	c := baseCanonical()

	lower := c
	lower.Currency = "ngn"
	assert.Equal(t, ComputeHash(c), ComputeHash(lower))

	lagos := time.FixedZone("WAT", 3600)
	shifted := c
	shifted.IssuedAt = c.IssuedAt.In(lagos)
	assert.Equal(t, ComputeHash(c), ComputeHash(shifted))
}

func TestComputeHashIgnoresSubMicrosecondDigits(t *testing.T) {
	c := baseCanonical()

	precise := c
	precise.IssuedAt = c.IssuedAt.Add(789 * time.Nanosecond)
	assert.Equal(t, ComputeHash(c), ComputeHash(precise))

	coarser := c
	coarser.IssuedAt = c.IssuedAt.Add(time.Microsecond)
	assert.NotEqual(t, ComputeHash(c), ComputeHash(coarser))
}

func TestVerify(t *testing.T) {
	c := baseCanonical()
	digest := ComputeHash(c)

	assert.True(t, Verify(c, digest))
	assert.True(t, Verify(c, " "+digest+" "))

	tampered := c
	tampered.Amount += 1
	assert.False(t, Verify(tampered, digest))
	assert.False(t, Verify(c, "deadbeef"))
}
