package keys

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func testEngine(t *testing.T, b byte) *Engine {
	t.Helper()
	e, err := NewEngine(testKey(b))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngine_RejectsShortKey(t *testing.T) {
	if _, err := NewEngine([]byte("short")); err == nil {
		t.Error("expected error for short master key")
	}
}

func TestEncryptForDevice_RoundTrip(t *testing.T) {
	e := testEngine(t, 0x11)
	deviceKey := testKey(0x22)

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte(`{"studentId":"S-100","grade":"A"}`),
		bytes.Repeat([]byte("attendance"), 1000),
	}
	for _, pt := range plaintexts {
		payload, err := e.EncryptForDevice(pt, deviceKey)
		if err != nil {
			t.Fatalf("EncryptForDevice(%d bytes): %v", len(pt), err)
		}
		got, err := e.DecryptFromDevice(payload, deviceKey)
		if err != nil {
			t.Fatalf("DecryptFromDevice: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Errorf("round trip mismatch for %d-byte plaintext", len(pt))
		}
	}
}

func TestEncryptForDevice_PayloadFields(t *testing.T) {
	e := testEngine(t, 0x11)
	pt := []byte("hello gateway")

	payload, err := e.EncryptForDevice(pt, testKey(0x22))
	if err != nil {
		t.Fatalf("EncryptForDevice: %v", err)
	}

	if payload.Algorithm != "AES-256-GCM" {
		t.Errorf("Algorithm = %q, want %q", payload.Algorithm, "AES-256-GCM")
	}
	if payload.IVLength != 12 {
		t.Errorf("IVLength = %d, want 12", payload.IVLength)
	}
	if payload.Version != PayloadVersion {
		t.Errorf("Version = %q, want %q", payload.Version, PayloadVersion)
	}
	if payload.Timestamp.IsZero() {
		t.Error("Timestamp must be set")
	}

	sum := sha256.Sum256(pt)
	wantHash := base64.StdEncoding.EncodeToString(sum[:])
	if payload.ContentHash != wantHash {
		t.Errorf("ContentHash = %q, want %q", payload.ContentHash, wantHash)
	}
}

func TestEncryptForDevice_WireFormat(t *testing.T) {
	e := testEngine(t, 0x11)
	pt := []byte("exactly twenty bytes")

	payload, err := e.EncryptForDevice(pt, testKey(0x22))
	if err != nil {
		t.Fatalf("EncryptForDevice: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(payload.EncryptedData)
	if err != nil {
		t.Fatalf("EncryptedData is not valid base64: %v", err)
	}

	// Wire bytes are IV(12) || ciphertext || tag(16).
	want := 12 + len(pt) + 16
	if len(raw) != want {
		t.Errorf("wire length = %d, want %d", len(raw), want)
	}
}

func TestDecryptFromDevice_TamperFails(t *testing.T) {
	e := testEngine(t, 0x11)
	deviceKey := testKey(0x22)

	payload, err := e.EncryptForDevice([]byte("do not touch"), deviceKey)
	if err != nil {
		t.Fatalf("EncryptForDevice: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(payload.EncryptedData)
	for i := 0; i < len(raw); i++ {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		payload.EncryptedData = base64.StdEncoding.EncodeToString(tampered)
		if _, err := e.DecryptFromDevice(payload, deviceKey); err == nil {
			t.Fatalf("flipping bit in byte %d did not fail authentication", i)
		}
	}
}

func TestDecryptFromDevice_WrongKeyFails(t *testing.T) {
	e := testEngine(t, 0x11)

	payload, err := e.EncryptForDevice([]byte("secret"), testKey(0x22))
	if err != nil {
		t.Fatalf("EncryptForDevice: %v", err)
	}

	_, err = e.DecryptFromDevice(payload, testKey(0x33))
	if err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
	if !errors.Is(err, ErrCrypto) {
		t.Errorf("error should wrap ErrCrypto, got: %v", err)
	}
}

func TestDecryptFromDevice_TruncatedCiphertext(t *testing.T) {
	e := testEngine(t, 0x11)
	payload := &EncryptedPayload{EncryptedData: base64.StdEncoding.EncodeToString([]byte("tiny"))}

	if _, err := e.DecryptFromDevice(payload, testKey(0x22)); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestGenerateDeviceKey(t *testing.T) {
	k1, err := GenerateDeviceKey()
	if err != nil {
		t.Fatalf("GenerateDeviceKey: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(k1)
	if err != nil {
		t.Fatalf("device key is not valid base64: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("device key length = %d, want 32", len(raw))
	}

	k2, _ := GenerateDeviceKey()
	if k1 == k2 {
		t.Error("two generated device keys should differ")
	}
}

func TestMasterKeyWrap_RoundTrip(t *testing.T) {
	e := testEngine(t, 0x11)
	deviceKey := testKey(0x44)

	wrapped, err := e.EncryptWithMasterKey(deviceKey)
	if err != nil {
		t.Fatalf("EncryptWithMasterKey: %v", err)
	}
	if bytes.Contains(wrapped, deviceKey) {
		t.Error("wrapped key must not contain raw key bytes")
	}

	unwrapped, err := e.DecryptWithMasterKey(wrapped)
	if err != nil {
		t.Fatalf("DecryptWithMasterKey: %v", err)
	}
	if !bytes.Equal(unwrapped, deviceKey) {
		t.Error("unwrapped key should equal original")
	}
}

func TestMasterKeyWrap_WrongEngineFails(t *testing.T) {
	e1 := testEngine(t, 0x11)
	e2 := testEngine(t, 0x55)

	wrapped, err := e1.EncryptWithMasterKey(testKey(0x44))
	if err != nil {
		t.Fatalf("EncryptWithMasterKey: %v", err)
	}
	if _, err := e2.DecryptWithMasterKey(wrapped); err == nil {
		t.Error("unwrapping under a different master key should fail")
	}
}

func TestRewrap_MovesKeyBetweenEngines(t *testing.T) {
	oldEngine := testEngine(t, 0x11)
	newEngine := testEngine(t, 0x55)
	deviceKey := testKey(0x44)

	wrapped, err := oldEngine.EncryptWithMasterKey(deviceKey)
	if err != nil {
		t.Fatalf("EncryptWithMasterKey: %v", err)
	}

	rewrapped, err := oldEngine.Rewrap(wrapped, newEngine)
	if err != nil {
		t.Fatalf("Rewrap: %v", err)
	}

	got, err := newEngine.DecryptWithMasterKey(rewrapped)
	if err != nil {
		t.Fatalf("DecryptWithMasterKey after rewrap: %v", err)
	}
	if !bytes.Equal(got, deviceKey) {
		t.Error("rewrapped key should unwrap to the original device key")
	}

	// Old engine must not be able to read the rewrapped blob.
	if _, err := oldEngine.DecryptWithMasterKey(rewrapped); err == nil {
		t.Error("old master key should not unwrap the rewrapped key")
	}
}

func TestHash_Format(t *testing.T) {
	got := Hash([]byte("abc"))
	sum := sha256.Sum256([]byte("abc"))
	want := base64.StdEncoding.EncodeToString(sum[:])
	if got != want {
		t.Errorf("Hash = %q, want %q", got, want)
	}
}

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	ZeroBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d = %d after ZeroBytes, want 0", i, v)
		}
	}
}
