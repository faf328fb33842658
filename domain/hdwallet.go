package domain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
)

const (
	kdfLabel      = "pbkdf2"
	kdfIterations = 310_000
	saltSize      = 16
)

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// kdfParams 编码在 SaltHex 中: "pbkdf2$<iterations>$<hexsalt>"
type kdfParams struct {
	salt       []byte
	iterations int
}

func newKDFParams(iterations int) (kdfParams, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return kdfParams{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return kdfParams{salt: salt, iterations: iterations}, nil
}

func (p kdfParams) String() string {
	return kdfLabel + "$" + strconv.Itoa(p.iterations) + "$" + hex.EncodeToString(p.salt)
}

func parseKDFParams(meta string) (kdfParams, error) {
	label, rest, ok := strings.Cut(meta, "$")
	if !ok || label != kdfLabel {
		return kdfParams{}, fmt.Errorf("unsupported kdf metadata %q", label)
	}
	iterStr, saltHex, ok := strings.Cut(rest, "$")
	if !ok {
		return kdfParams{}, errors.New("kdf metadata missing salt")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return kdfParams{}, errors.New("invalid kdf iterations")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return kdfParams{}, errors.New("invalid salt hex")
	}
	return kdfParams{salt: salt, iterations: iterations}, nil
}

// aead derives an AES-256-GCM cipher from passphrase with PBKDF2-SHA256.
func (p kdfParams) aead(passphrase string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), p.salt, p.iterations, 32, sha256.New)
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal returns nonce|ciphertext.
func seal(box cipher.AEAD, plain []byte) ([]byte, error) {
	nonce := make([]byte, box.NonceSize(), box.NonceSize()+len(plain)+box.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return box.Seal(nonce, nonce, plain, nil), nil
}

func open(box cipher.AEAD, sealed []byte) ([]byte, error) {
	n := box.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("ciphertext too short")
	}
	return box.Open(nil, sealed[:n], sealed[n:], nil)
}

// SealNewSeed generates a 24 word mnemonic and seals it together with its
// BIP-39 seed under passphrase. The mnemonic is returned once so the operator
// can back it up offline.
func SealNewSeed(passphrase string) (*entity.SealedSeed, string, error) {
	if passphrase == "" {
		return nil, "", errors.New("passphrase is required")
	}
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	sealed, err := sealMnemonic(mnemonic, passphrase, kdfIterations)
	if err != nil {
		return nil, "", err
	}
	return sealed, mnemonic, nil
}

func sealMnemonic(mnemonic, passphrase string, iterations int) (*entity.SealedSeed, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	defer clearBytes(seed)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	xpub, err := master.Neuter()
	if err != nil {
		return nil, fmt.Errorf("failed to neuter master key: %w", err)
	}

	params, err := newKDFParams(iterations)
	if err != nil {
		return nil, err
	}
	box, err := params.aead(passphrase)
	if err != nil {
		return nil, err
	}

	encSeed, err := seal(box, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt seed: %w", err)
	}
	encMnemonic, err := seal(box, []byte(mnemonic))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt mnemonic: %w", err)
	}

	return &entity.SealedSeed{
		MnemonicEncrypted: encMnemonic,
		EncryptedSeed:     encSeed,
		XPub:              xpub.String(),
		SaltHex:           params.String(),
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// UnsealSeed returns the plain seed. The caller must clear it after use.
func UnsealSeed(sealed *entity.SealedSeed, passphrase string) ([]byte, error) {
	if sealed == nil {
		return nil, errors.New("sealed seed is nil")
	}
	params, err := parseKDFParams(sealed.SaltHex)
	if err != nil {
		return nil, err
	}
	box, err := params.aead(passphrase)
	if err != nil {
		return nil, err
	}
	seed, err := open(box, sealed.EncryptedSeed)
	if err != nil {
		return nil, errors.New("incorrect passphrase or corrupted data")
	}
	return seed, nil
}

func WriteSealedSeed(path string, sealed *entity.SealedSeed) error {
	raw, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func ReadSealedSeed(path string) (*entity.SealedSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sealed entity.SealedSeed
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return nil, fmt.Errorf("decode sealed seed: %w", err)
	}
	return &sealed, nil
}

// parseDerivationPath turns "m/44'/60'/0'/0/7" into child indices.
func parseDerivationPath(path string) ([]uint32, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(path), "m/")
	if !ok {
		return nil, fmt.Errorf("derivation path %q must start with m/", path)
	}
	segments := strings.Split(rest, "/")
	out := make([]uint32, len(segments))
	for i, seg := range segments {
		num, hardened := strings.CutSuffix(seg, "'")
		v, err := strconv.ParseUint(num, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("derivation path %q: bad segment %q", path, seg)
		}
		out[i] = uint32(v)
		if hardened {
			out[i] += hdkeychain.HardenedKeyStart
		}
	}
	return out, nil
}
