package entity

import (
	"time"
)

type WithdrawalStatus string

const (
	WithdrawalPendingApproval WithdrawalStatus = "pending_approval"
	WithdrawalApproved        WithdrawalStatus = "approved"
	WithdrawalProcessing      WithdrawalStatus = "processing"
	WithdrawalCompleted       WithdrawalStatus = "completed"
	WithdrawalFailed          WithdrawalStatus = "failed"
	WithdrawalRejected        WithdrawalStatus = "rejected"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPendingApproval: {WithdrawalApproved, WithdrawalRejected},
	WithdrawalApproved:        {WithdrawalProcessing},
	WithdrawalProcessing:      {WithdrawalCompleted, WithdrawalFailed},
}

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPendingApproval, WithdrawalApproved, WithdrawalProcessing,
		WithdrawalCompleted, WithdrawalFailed, WithdrawalRejected:
		return true
	}
	return false
}

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed || s == WithdrawalRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TreasuryWithdrawal is one request to move funds out of a platform wallet.
type TreasuryWithdrawal struct {
	ID                         string           `bson:"_id" json:"id"`
	Chain                      string           `bson:"chain" json:"chain"`
	FromAddress                string           `bson:"from_address" json:"from_address"`
	ToAddress                  string           `bson:"to_address" json:"to_address"`
	TokenAmount                string           `bson:"token_amount" json:"token_amount"`
	TokenSymbol                string           `bson:"token_symbol" json:"token_symbol"`
	USDValueAtTime             string           `bson:"usd_value_at_time" json:"usd_value_at_time"`
	Status                     WithdrawalStatus `bson:"status" json:"status"`
	Reason                     string           `bson:"reason" json:"reason"`
	RequestedByID              string           `bson:"requested_by_id" json:"requested_by_id"`
	ApprovedByID               *string          `bson:"approved_by_id,omitempty" json:"approved_by_id"`
	RejectedByID               *string          `bson:"rejected_by_id,omitempty" json:"rejected_by_id"`
	RejectionReason            *string          `bson:"rejection_reason,omitempty" json:"rejection_reason"`
	TxHash                     *string          `bson:"tx_hash,omitempty" json:"tx_hash"`
	FailureReason              *string          `bson:"failure_reason,omitempty" json:"failure_reason"`
	ApprovedAt                 *time.Time       `bson:"approved_at,omitempty" json:"approved_at"`
	CompletedAt                *time.Time       `bson:"completed_at,omitempty" json:"completed_at"`
	ApprovedWhitelistAddresses []string         `bson:"approved_whitelist_addresses" json:"approved_whitelist_addresses"`
	CreatedAt                  time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt                  time.Time        `bson:"updated_at" json:"updated_at"`
}

// WithdrawalUpdate carries the fields written together with a status change.
// Nil pointers are left untouched.
type WithdrawalUpdate struct {
	Status          WithdrawalStatus
	ApprovedByID    *string
	ApprovedAt      *time.Time
	RejectedByID    *string
	RejectionReason *string
	TxHash          *string
	FailureReason   *string
	CompletedAt     *time.Time
}

type WithdrawalFilter struct {
	Chain         string
	Status        WithdrawalStatus
	ToAddress     string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
