package utils

/*
BIP-44 路径: m / purpose' / coin_type' / account' / change / address_index
  - 44'  purpose, BIP-44
  - 60'  coin type, Ethereum (EVM 链共用)
  - 0'   account
  - 0    change, 外部链
  - N    address index, 由 signing key ref 决定 (例如 "treasury/3" -> 3)
*/
const (
	ETH_DERIVATION_PATH_PREFIX = "m/44'/60'/0'/0/"
)

const (
	// LedgerScale is the number of fractional digits kept in persisted counters.
	LedgerScale int32 = 18

	// USDScale is used for USD snapshots.
	USDScale int32 = 8

	JobExecuteWithdrawal = "execute-withdrawal"
)
