package entity

import (
	"time"
)

type AuditAction string

const (
	AuditWhitelistAdded      AuditAction = "treasury_whitelist_address_added"
	AuditWhitelistRemoved    AuditAction = "treasury_whitelist_address_removed"
	AuditWithdrawalRequested AuditAction = "treasury_withdrawal_requested"
	AuditWithdrawalApproved  AuditAction = "treasury_withdrawal_approved"
	AuditWithdrawalRejected  AuditAction = "treasury_withdrawal_rejected"
	AuditWithdrawalExecuted  AuditAction = "treasury_withdrawal_executed"
	AuditWithdrawalFailed    AuditAction = "treasury_withdrawal_failed"
)

type ActorType string

const (
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

const (
	EntityWhitelistAddress   = "TreasuryWhitelistAddress"
	EntityTreasuryWithdrawal = "TreasuryWithdrawal"
)

// AuditLog is an immutable record of one action on a treasury entity.
type AuditLog struct {
	ID          string         `bson:"_id" json:"id"`
	EntityType  string         `bson:"entity_type" json:"entity_type"`
	EntityID    string         `bson:"entity_id" json:"entity_id"`
	Action      AuditAction    `bson:"action" json:"action"`
	ActorID     string         `bson:"actor_id" json:"actor_id"`
	ActorType   ActorType      `bson:"actor_type" json:"actor_type"`
	BeforeState map[string]any `bson:"before_state,omitempty" json:"before_state,omitempty"`
	AfterState  map[string]any `bson:"after_state,omitempty" json:"after_state,omitempty"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
}
