package keys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase-derived master keys.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
)

// LoadMasterKey resolves the 32-byte master key from configuration, in
// order of preference:
//
//  1. "master_key": base64-encoded 256-bit key.
//  2. "master_passphrase" + "master_key_salt": Argon2id-derived key.
//     The salt must stay stable across restarts or every stored device
//     key becomes unreadable.
//  3. Neither set: an ephemeral random key with a loud warning. Wrapped
//     device keys will not survive a restart -- never acceptable in
//     production.
//
// The key is immutable for the process lifetime. Rotation requires an
// explicit rewrap of every stored device key (see Engine.Rewrap).
func LoadMasterKey(cfg module.Config, logger *zap.Logger) ([]byte, error) {
	if b64 := cfg.GetString("master_key"); b64 != "" {
		key, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode master_key: %w", err)
		}
		if len(key) != keyLen {
			return nil, fmt.Errorf("master_key must decode to %d bytes, got %d", keyLen, len(key))
		}
		logger.Info("master key loaded from configuration")
		return key, nil
	}

	if passphrase := cfg.GetString("master_passphrase"); passphrase != "" {
		saltB64 := cfg.GetString("master_key_salt")
		if saltB64 == "" {
			return nil, fmt.Errorf("master_passphrase requires master_key_salt")
		}
		salt, err := base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return nil, fmt.Errorf("decode master_key_salt: %w", err)
		}
		if len(salt) < 16 {
			return nil, fmt.Errorf("master_key_salt must be at least 16 bytes, got %d", len(salt))
		}
		logger.Info("master key derived from passphrase")
		return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLen), nil
	}

	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, cryptoErr("generate ephemeral master key", err)
	}
	logger.Warn("EPHEMERAL MASTER KEY IN USE: no master_key or master_passphrase configured; " +
		"all wrapped device keys will be unreadable after restart -- do not run in production")
	return key, nil
}

// GenerateSalt returns a random 16-byte salt, base64-encoded, for
// first-time master_key_salt configuration.
func GenerateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", cryptoErr("generate salt", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}
