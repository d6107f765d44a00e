package audit

import (
	"time"

	id "custodia/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events that move value or custody. These are
	// written fail-closed inside the ledger transaction.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers bookkeeping events that move nothing.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Actor is the authenticated caller that performed the action.
	Actor id.Address `json:"actor"`
	// Subject names the affected entity: a content hash, an escrow id or an
	// account address.
	Subject      string     `json:"subject"`
	Action       string     `json:"action"`
	AssetID      id.AssetID `json:"asset_id,omitempty"`
	Amount       uint64     `json:"amount,omitempty"`
	Counterparty id.Address `json:"counterparty,omitempty"`
	RequestID    string     `json:"request_id,omitempty"`
	ClientIP     string     `json:"client_ip,omitempty"`
	Client       string     `json:"client,omitempty"`
}

type AuditEvent string

const (
	// Registry events
	EventCertificateCreated AuditEvent = "certificate_created"
	EventCertificateClaimed AuditEvent = "certificate_claimed"

	// Escrow events
	EventEscrowCreated      AuditEvent = "escrow_created"
	EventEscrowContribution AuditEvent = "escrow_contribution"
	EventEscrowReleased     AuditEvent = "escrow_released"

	// Ledger events
	EventPaymentSent     AuditEvent = "payment_sent"
	EventAssetRegistered AuditEvent = "asset_registered"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCertificateCreated: CategoryCompliance,
	EventCertificateClaimed: CategoryCompliance,
	EventEscrowContribution: CategoryCompliance,
	EventEscrowReleased:     CategoryCompliance,
	EventPaymentSent:        CategoryCompliance,

	EventEscrowCreated:   CategoryOperations,
	EventAssetRegistered: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
