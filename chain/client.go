package chain

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
)

// Client fans requests out to the per-chain ETHChain instances. It implements
// BalanceReader and Broadcaster.
type Client struct {
	registry *Registry
	chains   map[string]*ETHChain
	keys     KeyResolver
}

func NewClient(registry *Registry, chains []*ETHChain, keys KeyResolver) *Client {
	c := &Client{
		registry: registry,
		chains:   make(map[string]*ETHChain, len(chains)),
		keys:     keys,
	}
	for _, ch := range chains {
		c.chains[ch.info.Name] = ch
	}
	return c
}

// Dial connects every chain in the registry.
func Dial(ctx context.Context, registry *Registry, keys KeyResolver, logger *zap.Logger) (*Client, error) {
	var chains []*ETHChain
	for _, name := range registry.Names() {
		info, _ := registry.ByName(name)
		ch, err := DialETHChain(ctx, info, logger)
		if err != nil {
			for _, opened := range chains {
				opened.Close()
			}
			return nil, err
		}
		chains = append(chains, ch)
	}
	return NewClient(registry, chains, keys), nil
}

func (c *Client) chain(name string) (*ETHChain, error) {
	ch, ok := c.chains[name]
	if !ok {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, "chain.lookup", "unsupported chain %q", name)
	}
	return ch, nil
}

func (c *Client) TokenBalance(ctx context.Context, chain, address string) (*big.Int, error) {
	ch, err := c.chain(chain)
	if err != nil {
		return nil, err
	}
	return ch.TokenBalance(ctx, address)
}

func (c *Client) NativeBalance(ctx context.Context, chain, address string) (*big.Int, error) {
	ch, err := c.chain(chain)
	if err != nil {
		return nil, err
	}
	return ch.NativeBalance(ctx, address)
}

func (c *Client) SendTransfer(ctx context.Context, chainID int64, keyRef, to string, amount *big.Int) (string, error) {
	info, ok := c.registry.ByID(chainID)
	if !ok {
		return "", fmt.Errorf("unsupported chain id %d", chainID)
	}
	ch, err := c.chain(info.Name)
	if err != nil {
		return "", err
	}
	return ch.SendToken(ctx, c.keys, keyRef, to, amount)
}

func (c *Client) Close() {
	for _, ch := range c.chains {
		ch.Close()
	}
}
