package entity

import (
	"time"
)

// PlatformWallet is the platform-owned source wallet of one chain.
type PlatformWallet struct {
	ID                        string     `bson:"_id" json:"id"`
	Chain                     string     `bson:"chain" json:"chain"`
	WalletAddress             string     `bson:"wallet_address" json:"wallet_address"`
	TotalFeesCollectedAllTime string     `bson:"total_fees_collected_all_time" json:"total_fees_collected_all_time"` // 18 位小数
	TotalWithdrawnAllTime     string     `bson:"total_withdrawn_all_time" json:"total_withdrawn_all_time"`           // 18 位小数
	LastWithdrawalAt          *time.Time `bson:"last_withdrawal_at,omitempty" json:"last_withdrawal_at"`
	IsActive                  bool       `bson:"is_active" json:"is_active"`
	CreatedAt                 time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `bson:"updated_at" json:"updated_at"`
}
