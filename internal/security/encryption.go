package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"ai-assist/internal/domain"
)

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// AESSecretCipher implements domain.SecretCipher using AES-256-GCM.
// Stored values are base64(nonce || tag || ciphertext).
type AESSecretCipher struct {
	mu  sync.RWMutex
	key []byte // 32 bytes
}

// NewAESSecretCipher creates a cipher from a 32-byte master key.
func NewAESSecretCipher(key []byte) (*AESSecretCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &AESSecretCipher{key: k}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
// Empty and masked values are returned unchanged.
func (c *AESSecretCipher) Encrypt(plaintext string) (string, error) {
	if !domain.IsSecretSet(plaintext) {
		return plaintext, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", domain.WrapOp("SecretCipher.Encrypt", fmt.Errorf("%w: %v", domain.ErrEncryption, err))
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", domain.WrapOp("SecretCipher.Encrypt", fmt.Errorf("%w: generate nonce: %v", domain.ErrEncryption, err))
	}

	// Seal yields ciphertext || tag; the stored layout puts the tag first.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt.
// Empty and masked values are returned unchanged.
func (c *AESSecretCipher) Decrypt(blob string) (string, error) {
	if !domain.IsSecretSet(blob) {
		return blob, nil
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", domain.NewDomainError("SecretCipher.Decrypt", domain.ErrDecryption, "base64 decode")
	}
	if len(data) < gcmNonceSize+gcmTagSize {
		return "", domain.NewDomainError("SecretCipher.Decrypt", domain.ErrDecryption, "ciphertext too short")
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", domain.NewDomainError("SecretCipher.Decrypt", domain.ErrDecryption, err.Error())
	}

	nonce := data[:gcmNonceSize]
	tag := data[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ct := data[gcmNonceSize+gcmTagSize:]

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", domain.NewDomainError("SecretCipher.Decrypt", domain.ErrDecryption, "authentication failed")
	}
	return string(plaintext), nil
}

func (c *AESSecretCipher) gcm() (cipher.AEAD, error) {
	c.mu.RLock()
	key := make([]byte, len(c.key))
	copy(key, c.key)
	c.mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Zeroize clears the key bytes from memory. Call on shutdown.
func (c *AESSecretCipher) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
}

var _ domain.SecretCipher = (*AESSecretCipher)(nil)
