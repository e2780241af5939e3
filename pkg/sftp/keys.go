// Package sftp provisions SFTP access for accounts: keypair generation,
// public-key validation and an explicit registry of live connections.
package sftp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// rsaKeyBits is the provisioned keypair size.
const rsaKeyBits = 3072

// KeyPair is a freshly generated SFTP credential. PrivateKeyPEM is handed to
// the user exactly once and never persisted.
type KeyPair struct {
	PrivateKeyPEM string
	AuthorizedKey string
	Fingerprint   string
}

// GenerateKeyPair creates an RSA keypair for SFTP provisioning. The public
// half is returned in authorized_keys format together with its SHA256
// fingerprint.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("derive ssh public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyPEM: string(privPEM),
		AuthorizedKey: string(ssh.MarshalAuthorizedKey(pub)),
		Fingerprint:   ssh.FingerprintSHA256(pub),
	}, nil
}

// ValidateAuthorizedKey parses a user-supplied public key in authorized_keys
// format, returning its normalized form and fingerprint.
func ValidateAuthorizedKey(authorizedKey string) (normalized, fingerprint string, err error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return "", "", fmt.Errorf("parse authorized key: %w", err)
	}
	return string(ssh.MarshalAuthorizedKey(pub)), ssh.FingerprintSHA256(pub), nil
}
