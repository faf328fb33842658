package errors

type Code string

const (
	// business
	NotFound        Code = "NOT_FOUND"
	InvalidRequest  Code = "INVALID_REQUEST"
	Conflict        Code = "CONFLICT"
	Forbidden       Code = "FORBIDDEN"
	InvalidState    Code = "INVALID_STATE"
	ExternalFailure Code = "EXTERNAL_FAILURE"

	// chain
	CodeChainRPC     Code = "CHAIN_RPC_ERROR"
	CodeGasEstimate  Code = "GAS_ESTIMATE_ERROR"
	PendingNonceAt   Code = "PENDING_NONCE_AT_ERROR"
	DailChain        Code = "DIAL_CHAIN_ERROR"
	SignerErr        Code = "SIGNER_ERROR"
	SendTxErr        Code = "SEND_TX_ERROR"
	GetchainIDErr    Code = "GET_CHAIN_ID_ERROR"
	BroadcastTimeout Code = "BROADCAST_TIMEOUT"
)

// External reports whether the code belongs to a failure outside the service
// (chain RPC, signer, rate feed).
func (c Code) External() bool {
	switch c {
	case ExternalFailure, CodeChainRPC, CodeGasEstimate, PendingNonceAt, DailChain,
		SignerErr, SendTxErr, GetchainIDErr, BroadcastTimeout:
		return true
	}
	return false
}
