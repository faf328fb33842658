package entity

import (
	"time"
)

// SealedSeed is the at-rest form of the treasury HD seed. It is produced by
// script/keygen and read by the signing keyring; nothing here is stored in
// plaintext.
type SealedSeed struct {
	MnemonicEncrypted []byte    `json:"mnemonic_encrypted"`
	EncryptedSeed     []byte    `json:"encrypted_seed"`
	XPub              string    `json:"xpub"`
	SaltHex           string    `json:"salt_hex"` // "pbkdf2$<iterations>$<hexsalt>"
	CreatedAt         time.Time `json:"created_at"`
}
