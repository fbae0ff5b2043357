package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation (2^15).
	scryptN = 32768

	// scryptR is the block size parameter for scrypt key derivation.
	scryptR = 8

	// scryptP is the parallelization parameter for scrypt key derivation.
	scryptP = 1

	// keyLen is the derived AES-256 key length in bytes.
	keyLen = 32

	// saltLen is the length of the per-database salt.
	saltLen = 16

	// sealedMagic prefixes sealed values. Plain values are JSON objects
	// and always start with '{'.
	sealedMagic = 0x01
)

// deriveKey derives the sealing key from passphrase and salt with scrypt.
// The passphrase is normalized to NFKC so the same text typed on
// different platforms yields the same key.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	passphrase = norm.NFKC.String(passphrase)

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return key, nil
}

// zeroKey overwrites key material once the cipher has been built.
func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// sealer encrypts stored tokens with AES-GCM.
// Format: [magic][12-byte nonce][ciphertext+tag]
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &sealer{gcm: gcm}, nil
}

// seal encrypts plaintext, binding it to ad (the client id) so a value
// copied under another key fails to open.
func (s *sealer) seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.gcm.Overhead())
	out = append(out, sealedMagic)
	out = append(out, nonce...)

	return s.gcm.Seal(out, nonce, plaintext, ad), nil
}

func (s *sealer) open(data, ad []byte) ([]byte, error) {
	ns := s.gcm.NonceSize()
	if len(data) < 1+ns+s.gcm.Overhead() {
		return nil, fmt.Errorf("sealed token too short: %d bytes", len(data))
	}

	nonce := data[1 : 1+ns]

	plaintext, err := s.gcm.Open(nil, nonce, data[1+ns:], ad)
	if err != nil {
		return nil, fmt.Errorf("unsealing token: %w", err)
	}

	return plaintext, nil
}

func isSealed(data []byte) bool {
	return len(data) > 0 && data[0] == sealedMagic
}
