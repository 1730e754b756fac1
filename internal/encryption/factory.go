package encryption

import (
	"fmt"

	"reaper-go/internal/config"
)

// NewEncryptorFromConfig creates the media Encryptor selected by cfg.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return Plaintext{}, nil
	case "age":
		return NewAgeKeys(cfg), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// NewDecryptorFromConfig creates the Decryptor matching cfg. The age
// private key is unlocked with passphrase; other types ignore it.
func NewDecryptorFromConfig(cfg config.EncryptionConfig, passphrase string) (Decryptor, error) {
	switch cfg.Type {
	case "none", "":
		return Plaintext{}, nil
	case "age":
		return NewAgeKeys(cfg).Unlock(passphrase)
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
