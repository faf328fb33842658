package entity

import (
	"slices"
	"time"
)

// WhitelistAddress is a destination allowed to receive treasury withdrawals.
// CreatedAt is the timelock anchor.
type WhitelistAddress struct {
	ID            string     `bson:"_id" json:"id"`
	Address       string     `bson:"address" json:"address"`
	Label         string     `bson:"label" json:"label"`
	AllowedChains []string   `bson:"allowed_chains" json:"allowed_chains"`
	IsActive      bool       `bson:"is_active" json:"is_active"`
	AddedByID     string     `bson:"added_by_id" json:"added_by_id"`
	RemovedByID   *string    `bson:"removed_by_id,omitempty" json:"removed_by_id"`
	RemovedAt     *time.Time `bson:"removed_at,omitempty" json:"removed_at"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}

func (w *WhitelistAddress) AllowsChain(chain string) bool {
	return slices.Contains(w.AllowedChains, chain)
}

// TimelockElapsed reports whether the entry is at least lock old at now.
func (w *WhitelistAddress) TimelockElapsed(now time.Time, lock time.Duration) bool {
	return now.Sub(w.CreatedAt) >= lock
}
