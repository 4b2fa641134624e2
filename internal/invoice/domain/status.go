package domain

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusSent   InvoiceStatus = "sent"
	InvoiceStatusViewed InvoiceStatus = "viewed"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoided InvoiceStatus = "voided"

	// InvoiceStatusCredited is a display status derived from the presence of a
	// credit note; it is never persisted as the invoice status.
	InvoiceStatusCredited InvoiceStatus = "credited"
)

// allowedTransitions is the single source of truth for the lifecycle graph.
// There is no path back to draft and no path out of voided or paid.
var allowedTransitions = map[InvoiceStatus]map[InvoiceStatus]struct{}{
	InvoiceStatusDraft: {
		InvoiceStatusIssued: {},
	},
	InvoiceStatusIssued: {
		InvoiceStatusSent:   {},
		InvoiceStatusViewed: {},
		InvoiceStatusPaid:   {},
		InvoiceStatusVoided: {},
	},
	InvoiceStatusSent: {
		InvoiceStatusViewed: {},
		InvoiceStatusPaid:   {},
		InvoiceStatusVoided: {},
	},
	InvoiceStatusViewed: {
		InvoiceStatusPaid:   {},
		InvoiceStatusVoided: {},
	},
	InvoiceStatusPaid:   {},
	InvoiceStatusVoided: {},
}

// Valid reports whether s is a persistable lifecycle status.
func (s InvoiceStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether the lifecycle graph permits moving to next.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	targets, ok := allowedTransitions[s]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

// Mutable reports whether invoice fields and line items may still change.
func (s InvoiceStatus) Mutable() bool {
	return s == InvoiceStatusDraft
}

// Payable reports whether payments may be recorded against this status.
func (s InvoiceStatus) Payable() bool {
	return s.CanTransitionTo(InvoiceStatusPaid)
}

// Voidable reports whether the invoice may be voided from this status.
// Paid invoices are not voidable; reversing a settled invoice goes through
// a refund flow, not a void.
func (s InvoiceStatus) Voidable() bool {
	return s.CanTransitionTo(InvoiceStatusVoided)
}
