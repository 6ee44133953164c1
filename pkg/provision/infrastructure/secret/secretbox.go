// Package secret seals mailbox passwords with NaCl secretbox.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrInvalidToken is returned when a token cannot be decoded or authenticated.
var ErrInvalidToken = errors.New("invalid secret token")

// SecretboxCipher implements port.SecretCipher. Tokens are base64url(nonce || box).
type SecretboxCipher struct {
	key [keySize]byte
}

// NewSecretboxCipher creates a cipher from a base64 encoded 32 byte key.
func NewSecretboxCipher(encodedKey string) (*SecretboxCipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, exception.NewBatchError("secret", exception.KindConfiguration, "security.secret_key is not valid base64", err)
	}
	if len(raw) != keySize {
		return nil, exception.NewBatchErrorf("secret", exception.KindConfiguration,
			"security.secret_key must decode to %d bytes, got %d", keySize, len(raw))
	}
	c := &SecretboxCipher{}
	copy(c.key[:], raw)
	return c, nil
}

// NewSecretCipherProvider builds the cipher from security.secret_key.
func NewSecretCipherProvider(cfg *config.Config) (port.SecretCipher, error) {
	return NewSecretboxCipher(cfg.Provisioner.Security.SecretKey)
}

// GenerateKey returns a fresh base64 encoded key suitable for security.secret_key.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

func (c *SecretboxCipher) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *SecretboxCipher) Decrypt(token string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidToken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}

var _ port.SecretCipher = (*SecretboxCipher)(nil)
