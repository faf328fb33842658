package request

// --- 请求结构 ---

type AddWhitelistReq struct {
	Address       string   `json:"address" binding:"required,eth_addr"`
	Label         string   `json:"label" binding:"required,min=5,max=100"`
	AllowedChains []string `json:"allowed_chains" binding:"required,min=1,dive,required"`
}

type RequestWithdrawalReq struct {
	Chain       string `json:"chain" binding:"required"`
	ToAddress   string `json:"to_address" binding:"required,eth_addr"`
	TokenAmount string `json:"token_amount" binding:"required"`
	TokenSymbol string `json:"token_symbol" binding:"required"`
	Reason      string `json:"reason" binding:"required,min=30,max=2000"`
}

type RejectWithdrawalReq struct {
	RejectionReason string `json:"rejection_reason" binding:"required,min=20"`
}

// WithdrawalFilterReq is bound from the query string. Times are RFC 3339.
type WithdrawalFilterReq struct {
	Chain         string `form:"chain"`
	Status        string `form:"status"`
	ToAddress     string `form:"to_address"`
	CreatedAfter  string `form:"created_after"`
	CreatedBefore string `form:"created_before"`
}
