package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/metrics"
	"github.com/linlinbupt123-crypto/treasury_service/utils"
)

const balanceFetchConcurrency = 8

type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	USDValue string `json:"usd_value"`
}

type WalletSummary struct {
	Chain                     string         `json:"chain"`
	WalletAddress             string         `json:"wallet_address"`
	Tokens                    []TokenBalance `json:"tokens"`
	TotalUSDValue             string         `json:"total_usd_value"`
	TotalFeesCollectedAllTime string         `json:"total_fees_collected_all_time"`
	TotalWithdrawnAllTime     string         `json:"total_withdrawn_all_time"`
	LastWithdrawalAt          *time.Time     `json:"last_withdrawal_at"`
	LastRefreshedAt           time.Time      `json:"last_refreshed_at"`
	Error                     string         `json:"error,omitempty"`

	total decimal.Decimal
}

type WalletsOverview struct {
	Wallets            []WalletSummary `json:"wallets"`
	GrandTotalUSDValue string          `json:"grand_total_usd_value"`
}

// GetWalletsWithBalances reads live balances of every active platform wallet
// concurrently. A wallet whose lookups fail is reported with Error set and is
// left out of the grand total; the others are unaffected.
func (s *TreasuryService) GetWalletsWithBalances(ctx context.Context) (*WalletsOverview, error) {
	wallets, err := s.wallets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallets.list: %w", err)
	}

	summaries := make([]WalletSummary, len(wallets))
	var g errgroup.Group
	g.SetLimit(balanceFetchConcurrency)
	for i, w := range wallets {
		g.Go(func() error {
			summary, err := s.summarizeWallet(ctx, w)
			if err != nil {
				metrics.BalanceFetchFailures.WithLabelValues(w.Chain).Inc()
				s.logger.Warn("wallet balance unavailable", zap.String("chain", w.Chain), zap.Error(err))
				summary.Error = err.Error()
			}
			summaries[i] = summary
			return nil
		})
	}
	_ = g.Wait()

	grand := decimal.Zero
	for _, sum := range summaries {
		if sum.Error == "" {
			grand = grand.Add(sum.total)
		}
	}
	return &WalletsOverview{
		Wallets:            summaries,
		GrandTotalUSDValue: grand.StringFixed(2),
	}, nil
}

func (s *TreasuryService) summarizeWallet(ctx context.Context, w *entity.PlatformWallet) (WalletSummary, error) {
	summary := WalletSummary{
		Chain:                     w.Chain,
		WalletAddress:             w.WalletAddress,
		TotalFeesCollectedAllTime: w.TotalFeesCollectedAllTime,
		TotalWithdrawnAllTime:     w.TotalWithdrawnAllTime,
		LastWithdrawalAt:          w.LastWithdrawalAt,
		LastRefreshedAt:           s.now(),
	}
	info, ok := s.registry.ByName(w.Chain)
	if !ok {
		return summary, fmt.Errorf("chain %q is not configured", w.Chain)
	}

	ctx, cancel := s.withTimeout(ctx, s.opts.BalanceTimeout)
	defer cancel()

	var tokenRaw, nativeRaw *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.balances.TokenBalance(gctx, w.Chain, w.WalletAddress)
		if err != nil {
			return fmt.Errorf("token balance: %w", err)
		}
		tokenRaw = v
		return nil
	})
	g.Go(func() error {
		v, err := s.balances.NativeBalance(gctx, w.Chain, w.WalletAddress)
		if err != nil {
			return fmt.Errorf("native balance: %w", err)
		}
		nativeRaw = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}

	token := utils.FromSmallestUnit(tokenRaw, info.TokenDecimals)
	native := utils.FromSmallestUnit(nativeRaw, info.NativeDecimals)

	rateCtx, cancelRate := s.withTimeout(ctx, s.opts.RateTimeout)
	nativeUSD, err := s.rates.ToUSD(rateCtx, info.NativeSymbol, native)
	cancelRate()
	if err != nil {
		return summary, fmt.Errorf("native rate: %w", err)
	}

	// 稳定币按 1:1 计入 USD
	tokenUSD := token
	summary.total = tokenUSD.Add(nativeUSD)
	summary.Tokens = []TokenBalance{
		{Symbol: info.TokenSymbol, Balance: token.String(), USDValue: tokenUSD.StringFixed(2)},
		{Symbol: info.NativeSymbol, Balance: native.String(), USDValue: nativeUSD.StringFixed(2)},
	}
	summary.TotalUSDValue = summary.total.StringFixed(2)
	return summary, nil
}
