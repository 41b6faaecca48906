package domain

import "time"

type AuditKind string

const (
	AuditBenefitCreated    AuditKind = "benefit_created"
	AuditBenefitRestocked  AuditKind = "benefit_restocked"
	AuditBenefitCorrected  AuditKind = "benefit_corrected"
	AuditBenefitUpdated    AuditKind = "benefit_updated"
	AuditBenefitRetired    AuditKind = "benefit_retired"
	AuditAvailability      AuditKind = "benefit_availability_changed"
	AuditAssigned          AuditKind = "assigned"
	AuditAssignmentRevoked AuditKind = "assignment_revoked"
	AuditDelegateReclaimed AuditKind = "delegate_reclaimed"
	AuditDelivered         AuditKind = "delivered"
	AuditDeliveryReversed  AuditKind = "delivery_reversed"
	AuditLedgerCorruption  AuditKind = "ledger_corruption"
)

// AuditEvent is emitted after a committed ledger mutation.
type AuditEvent struct {
	Kind      AuditKind         `json:"kind"`
	ActorID   string            `json:"actor_id"`
	Timestamp time.Time         `json:"timestamp"`
	EntityIDs map[string]string `json:"entity_ids"`
}
