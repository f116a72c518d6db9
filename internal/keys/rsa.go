package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const rsaBits = 2048

// KeyPair holds a PEM-encoded RSA-2048 keypair.
type KeyPair struct {
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

// GenerateKeyPair creates a fresh RSA-2048 keypair with standard
// BEGIN/END PEM headers.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, cryptoErr("generate RSA keypair", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, cryptoErr("encode RSA public key", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	return &KeyPair{PrivateKeyPEM: privPEM, PublicKeyPEM: pubPEM}, nil
}

// EncryptWithPublicKey encrypts plaintext under the RSA public key found
// in certPEM using OAEP with SHA-256. This is the out-of-band key
// bootstrap path, not the hot transmission path. RSA-2048-OAEP caps the
// plaintext at 190 bytes, enough for a wrapped symmetric key.
func EncryptWithPublicKey(plaintext, certPEM []byte) ([]byte, error) {
	pub, err := parseRSAPublicKey(certPEM)
	if err != nil {
		return nil, cryptoErr("parse public key", err)
	}
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, cryptoErr("RSA-OAEP encrypt", err)
	}
	return out, nil
}

// DecryptWithPrivateKey reverses EncryptWithPublicKey.
func DecryptWithPrivateKey(ciphertext, privPEM []byte) ([]byte, error) {
	priv, err := parseRSAPrivateKey(privPEM)
	if err != nil {
		return nil, cryptoErr("parse private key", err)
	}
	out, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, cryptoErr("RSA-OAEP decrypt", err)
	}
	return out, nil
}

// Sign produces an RSA-SHA256 signature over data.
func Sign(data, privPEM []byte) ([]byte, error) {
	priv, err := parseRSAPrivateKey(privPEM)
	if err != nil {
		return nil, cryptoErr("parse private key", err)
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, cryptoErr("sign", err)
	}
	return sig, nil
}

// Verify checks an RSA-SHA256 signature over data against the public
// key in certPEM. Returns ErrCrypto on mismatch.
func Verify(data, sig, certPEM []byte) error {
	pub, err := parseRSAPublicKey(certPEM)
	if err != nil {
		return cryptoErr("parse public key", err)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return cryptoErr("verify signature", err)
	}
	return nil
}

// parseRSAPublicKey accepts a PEM certificate or a bare PEM public key
// and returns the contained RSA public key.
func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate does not contain an RSA public key")
		}
		return pub, nil
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA public key")
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return priv, nil
}
