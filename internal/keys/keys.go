// Package keys implements the gateway's encryption engine: AES-256-GCM
// payload encryption with per-device keys, master-key wrapping of device
// keys at rest, RSA-2048-OAEP key bootstrap, signing, and hashing.
//
// An Engine holds exactly one master key. Components that need
// independently scoped key material construct their own Engine and pass
// it explicitly; there is no package-level singleton.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	keyLen   = 32 // AES-256
	nonceLen = 12 // AES-GCM standard nonce size
	tagLen   = 16 // AES-GCM authentication tag

	// Algorithm is the wire identifier stamped on every payload.
	Algorithm = "AES-256-GCM"

	// PayloadVersion identifies the wire format version.
	PayloadVersion = "1.0"
)

// ErrCrypto is the single opaque error kind for all cryptographic
// failures. The underlying cause is retained in the error text for
// logs; callers should only test with errors.Is.
var ErrCrypto = errors.New("cryptographic operation failed")

// cryptoErr wraps a cause into ErrCrypto without exposing library
// error types to callers.
func cryptoErr(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrCrypto, op, cause)
}

// EncryptedPayload is the wire envelope produced for a device.
// EncryptedData is base64(IV || ciphertext || tag). It never carries
// the plaintext or any key material.
type EncryptedPayload struct {
	Algorithm     string    `json:"algorithm"`
	EncryptedData string    `json:"encryptedData"`
	IVLength      int       `json:"ivLength"`
	Signature     string    `json:"signature,omitempty"`
	ContentHash   string    `json:"contentHash"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
}

// Engine performs symmetric cryptography under one master key.
type Engine struct {
	masterKey []byte
}

// NewEngine creates an Engine with the given 32-byte master key.
func NewEngine(masterKey []byte) (*Engine, error) {
	if len(masterKey) != keyLen {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keyLen, len(masterKey))
	}
	k := make([]byte, keyLen)
	copy(k, masterKey)
	return &Engine{masterKey: k}, nil
}

// EncryptForDevice encrypts plaintext with a device's symmetric key and
// returns the full payload envelope including the plaintext content hash.
func (e *Engine) EncryptForDevice(plaintext, deviceKey []byte) (*EncryptedPayload, error) {
	sealed, err := encrypt(deviceKey, plaintext)
	if err != nil {
		return nil, cryptoErr("encrypt device payload", err)
	}
	return &EncryptedPayload{
		Algorithm:     Algorithm,
		EncryptedData: base64.StdEncoding.EncodeToString(sealed),
		IVLength:      nonceLen,
		ContentHash:   Hash(plaintext),
		Timestamp:     time.Now().UTC(),
		Version:       PayloadVersion,
	}, nil
}

// DecryptFromDevice reverses EncryptForDevice. Any tampering with the
// ciphertext fails tag verification and surfaces as ErrCrypto; partial
// plaintext is never returned.
func (e *Engine) DecryptFromDevice(payload *EncryptedPayload, deviceKey []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload.EncryptedData)
	if err != nil {
		return nil, cryptoErr("decode device payload", err)
	}
	plaintext, err := decrypt(deviceKey, raw)
	if err != nil {
		return nil, cryptoErr("decrypt device payload", err)
	}
	return plaintext, nil
}

// GenerateDeviceKey returns a fresh random 256-bit symmetric key,
// base64-encoded for transport to the registration flow.
func GenerateDeviceKey() (string, error) {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return "", cryptoErr("generate device key", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptWithMasterKey wraps data (a device key) under the master key.
// Used solely to protect device keys at rest.
func (e *Engine) EncryptWithMasterKey(data []byte) ([]byte, error) {
	wrapped, err := encrypt(e.masterKey, data)
	if err != nil {
		return nil, cryptoErr("wrap with master key", err)
	}
	return wrapped, nil
}

// DecryptWithMasterKey unwraps data previously wrapped with
// EncryptWithMasterKey.
func (e *Engine) DecryptWithMasterKey(wrapped []byte) ([]byte, error) {
	data, err := decrypt(e.masterKey, wrapped)
	if err != nil {
		return nil, cryptoErr("unwrap with master key", err)
	}
	return data, nil
}

// Rewrap re-encrypts a wrapped key from this engine's master key to the
// target engine's master key. Master-key rotation is an explicit
// maintenance operation: every stored device key must be rewrapped,
// never implicitly.
func (e *Engine) Rewrap(wrapped []byte, target *Engine) ([]byte, error) {
	key, err := e.DecryptWithMasterKey(wrapped)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)
	return target.EncryptWithMasterKey(key)
}

// Hash returns base64(SHA-256(data)). Used for payload content hashes
// so receivers can verify integrity after their own decryption.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ZeroBytes overwrites a byte slice with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// encrypt performs AES-256-GCM encryption. Returns nonce || ciphertext+tag.
func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt performs AES-256-GCM decryption. Expects nonce || ciphertext+tag.
func decrypt(key, data []byte) ([]byte, error) {
	if len(data) < nonceLen {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := data[:nonceLen]
	ciphertext := data[nonceLen:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}
