package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

// encryptedPrefix marks a configuration value holding a Fernet token.
const encryptedPrefix = "fernet:"

// ErrMissingEncryptionKey is returned when an encrypted value is configured
// without CONFIG_ENCRYPTION_KEY.
var ErrMissingEncryptionKey = errors.New("encrypted value requires CONFIG_ENCRYPTION_KEY")

// decryptSecret returns value unchanged unless it carries the "fernet:"
// prefix, in which case the token is verified and decrypted with key.
// Token age is not checked.
func decryptSecret(value, key string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	if key == "" {
		return "", ErrMissingEncryptionKey
	}

	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid encryption key: %w", err)
	}

	token := strings.TrimPrefix(value, encryptedPrefix)
	msg := fernet.VerifyAndDecrypt([]byte(token), -1, []*fernet.Key{k})
	if msg == nil {
		return "", errors.New("failed to decrypt value: token invalid or signed with another key")
	}
	return string(msg), nil
}

// EncryptSecret produces a "fernet:<token>" value for the given plaintext,
// suitable for placing in the environment or a .env file.
func EncryptSecret(plaintext, key string) (string, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid encryption key: %w", err)
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), k)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt value: %w", err)
	}
	return encryptedPrefix + string(tok), nil
}
