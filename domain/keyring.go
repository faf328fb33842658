package domain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/linlinbupt123-crypto/treasury_service/utils"
)

const keyRefPrefix = "treasury/"

// Keyring resolves signing key references ("treasury/<index>") to EVM
// private keys derived from the unsealed treasury seed.
type Keyring struct {
	mu    sync.Mutex
	seed  []byte
	cache map[string]*ecdsa.PrivateKey
}

// NewKeyring takes ownership of seed; Close clears it.
func NewKeyring(seed []byte) (*Keyring, error) {
	if len(seed) < hdkeychain.MinSeedBytes {
		return nil, errors.New("seed too short")
	}
	return &Keyring{seed: seed, cache: make(map[string]*ecdsa.PrivateKey)}, nil
}

// OpenKeyring loads the sealed seed file and unseals it with passphrase.
func OpenKeyring(seedFile, passphrase string) (*Keyring, error) {
	sealed, err := ReadSealedSeed(seedFile)
	if err != nil {
		return nil, err
	}
	seed, err := UnsealSeed(sealed, passphrase)
	if err != nil {
		return nil, err
	}
	return NewKeyring(seed)
}

// ParseKeyRef returns the BIP-44 address index of a key reference.
func ParseKeyRef(ref string) (uint32, error) {
	if !strings.HasPrefix(ref, keyRefPrefix) {
		return 0, fmt.Errorf("key ref %q must look like %s<index>", ref, keyRefPrefix)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(ref, keyRefPrefix), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("key ref %q: invalid index", ref)
	}
	return uint32(n), nil
}

func (k *Keyring) PrivateKey(ref string) (*ecdsa.PrivateKey, error) {
	index, err := ParseKeyRef(ref)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.seed == nil {
		return nil, errors.New("keyring is closed")
	}
	if key, ok := k.cache[ref]; ok {
		return key, nil
	}
	key, err := deriveETHKey(k.seed, utils.ETH_DERIVATION_PATH_PREFIX+strconv.FormatUint(uint64(index), 10))
	if err != nil {
		return nil, err
	}
	k.cache[ref] = key
	return key, nil
}

// Address returns the checksummed EVM address of a key reference.
func (k *Keyring) Address(ref string) (string, error) {
	key, err := k.PrivateKey(ref)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	clearBytes(k.seed)
	k.seed = nil
	k.cache = nil
}

func deriveETHKey(seed []byte, path string) (*ecdsa.PrivateKey, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams) // hdkeychain 不区分 eth 网络
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	indices, err := parseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}

	key := master
	for _, idx := range indices {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get EC private key: %w", err)
	}
	privBytes := priv.Serialize()
	defer clearBytes(privBytes)

	ecdsaKey, err := crypto.ToECDSA(privBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to ecdsa: %w", err)
	}
	return ecdsaKey, nil
}
