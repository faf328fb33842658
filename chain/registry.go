package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/linlinbupt123-crypto/treasury_service/config"
)

// Info describes one supported chain and its treasury token.
type Info struct {
	Name           string
	ID             int64
	RPC            string
	TokenSymbol    string
	TokenContract  string
	TokenDecimals  int32
	NativeSymbol   string
	NativeDecimals int32
	GasLimit       uint64
}

// Registry maps chain names to chain ids and back. It is immutable once built.
type Registry struct {
	byName map[string]Info
	byID   map[int64]Info
	names  []string
}

func NewRegistry(chains []config.ChainConfig) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Info, len(chains)),
		byID:   make(map[int64]Info, len(chains)),
	}
	for _, c := range chains {
		name := CanonicalName(c.Name)
		if name == "" {
			return nil, fmt.Errorf("chain %d has no name", c.ChainID)
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("duplicate chain name %q", c.Name)
		}
		if _, ok := r.byID[c.ChainID]; ok {
			return nil, fmt.Errorf("duplicate chain id %d", c.ChainID)
		}
		if c.TokenContract != "" && !common.IsHexAddress(c.TokenContract) {
			return nil, fmt.Errorf("chain %q: invalid token contract %q", c.Name, c.TokenContract)
		}
		nativeDecimals := c.NativeDecimals
		if nativeDecimals == 0 {
			nativeDecimals = 18
		}
		info := Info{
			Name:           name,
			ID:             c.ChainID,
			RPC:            c.RPC,
			TokenSymbol:    c.TokenSymbol,
			TokenContract:  c.TokenContract,
			TokenDecimals:  c.TokenDecimals,
			NativeSymbol:   c.NativeSymbol,
			NativeDecimals: nativeDecimals,
			GasLimit:       c.GasLimit,
		}
		r.byName[name] = info
		r.byID[c.ChainID] = info
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// CanonicalName is the registry key form of a chain name: trimmed, lower case.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) ByName(name string) (Info, bool) {
	info, ok := r.byName[CanonicalName(name)]
	return info, ok
}

func (r *Registry) ByID(id int64) (Info, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// ChainID maps a chain name to its numeric id.
func (r *Registry) ChainID(name string) (int64, bool) {
	info, ok := r.byName[CanonicalName(name)]
	return info.ID, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// NormalizeAddress validates an EVM hex address and returns its checksum form.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid EVM address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
