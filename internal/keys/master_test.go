package keys

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/schoolgate/schoolgate/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func cfgWith(t *testing.T, kv map[string]string) *config.ViperConfig {
	t.Helper()
	v := viper.New()
	for k, val := range kv {
		v.Set(k, val)
	}
	return config.New(v)
}

func TestLoadMasterKey_FromBase64(t *testing.T) {
	key := testKey(0x77)
	cfg := cfgWith(t, map[string]string{
		"master_key": base64.StdEncoding.EncodeToString(key),
	})

	got, err := LoadMasterKey(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("loaded key does not match configured key")
	}
}

func TestLoadMasterKey_RejectsWrongLength(t *testing.T) {
	cfg := cfgWith(t, map[string]string{
		"master_key": base64.StdEncoding.EncodeToString([]byte("too short")),
	})
	if _, err := LoadMasterKey(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for non-256-bit master key")
	}
}

func TestLoadMasterKey_RejectsBadBase64(t *testing.T) {
	cfg := cfgWith(t, map[string]string{"master_key": "!!not base64!!"})
	if _, err := LoadMasterKey(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestLoadMasterKey_PassphraseDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	cfg := cfgWith(t, map[string]string{
		"master_passphrase": "correct horse battery staple",
		"master_key_salt":   salt,
	})

	k1, err := LoadMasterKey(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	k2, err := LoadMasterKey(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadMasterKey second call: %v", err)
	}

	if len(k1) != 32 {
		t.Errorf("derived key length = %d, want 32", len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase+salt must derive the same key")
	}
}

func TestLoadMasterKey_PassphraseRequiresSalt(t *testing.T) {
	cfg := cfgWith(t, map[string]string{"master_passphrase": "secret"})
	if _, err := LoadMasterKey(cfg, zap.NewNop()); err == nil {
		t.Error("expected error when master_key_salt is missing")
	}
}

func TestLoadMasterKey_EphemeralFallback(t *testing.T) {
	cfg := cfgWith(t, nil)

	k1, err := LoadMasterKey(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	if len(k1) != 32 {
		t.Errorf("ephemeral key length = %d, want 32", len(k1))
	}

	k2, _ := LoadMasterKey(cfg, zap.NewNop())
	if bytes.Equal(k1, k2) {
		t.Error("ephemeral keys must be random per load")
	}
}
