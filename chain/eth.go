package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
)

// ethBackend is the subset of *ethclient.Client the treasury uses.
type ethBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// ETHChain talks to one EVM chain and knows its treasury token.
type ETHChain struct {
	info    Info
	chainID *big.Int
	client  ethBackend
	logger  *zap.Logger
}

func DialETHChain(ctx context.Context, info Info, logger *zap.Logger) (*ETHChain, error) {
	client, err := ethclient.DialContext(ctx, info.RPC)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.DailChain, "eth dial "+info.Name, err)
	}
	return newETHChain(info, client, logger), nil
}

func newETHChain(info Info, client ethBackend, logger *zap.Logger) *ETHChain {
	return &ETHChain{
		info:    info,
		chainID: big.NewInt(info.ID),
		client:  client,
		logger:  logger.With(zap.String("chain", info.Name)),
	}
}

func (e *ETHChain) Info() Info {
	return e.info
}

func (e *ETHChain) TokenBalance(ctx context.Context, address string) (*big.Int, error) {
	if e.info.TokenContract == "" {
		return nil, fmt.Errorf("chain %s has no token contract", e.info.Name)
	}
	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	contract := common.HexToAddress(e.info.TokenContract)
	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "balanceOf", err)
	}
	// 从未持有过该 token 的地址可能返回空结果
	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	out, err := erc20ABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balance: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok || balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (e *ETHChain) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	balance, err := e.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "BalanceAt", err)
	}
	return balance, nil
}

// SendToken builds an EIP-1559 ERC-20 transfer, signs it with the key behind
// keyRef and submits it.
func (e *ETHChain) SendToken(ctx context.Context, keys KeyResolver, keyRef, to string, amount *big.Int) (string, error) {
	priv, err := keys.PrivateKey(keyRef)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.SignerErr, "resolve key", err)
	}
	if e.info.TokenContract == "" {
		return "", fmt.Errorf("chain %s has no token contract", e.info.Name)
	}
	fromAddr := crypto.PubkeyToAddress(priv.PublicKey)
	toAddr := common.HexToAddress(to)
	contract := common.HexToAddress(e.info.TokenContract)

	data, err := erc20ABI.Pack("transfer", toAddr, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.PendingNonceAt, "PendingNonceAt", err)
	}
	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "SuggestGasTipCap", err)
	}
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "HeaderByNumber", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(
		new(big.Int).Mul(baseFee, big.NewInt(2)), // 留 buffer
		tip,
	)

	gas := e.info.GasLimit
	if gas == 0 {
		estimated, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: fromAddr, To: &contract, Data: data})
		if err != nil {
			return "", wrapErrors.WrapWithCode(wrapErrors.CodeGasEstimate, "EstimateGas", err)
		}
		gas = estimated * 12 / 10
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &contract,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), priv)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.SignerErr, "SignTx", err)
	}
	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.SendTxErr, "SendTransaction", err)
	}

	hash := signedTx.Hash().Hex()
	e.logger.Info("token transfer sent",
		zap.String("from", fromAddr.Hex()),
		zap.String("to", toAddr.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("nonce", nonce),
		zap.String("tx_hash", hash))
	return hash, nil
}

func (e *ETHChain) Close() {
	e.client.Close()
}
