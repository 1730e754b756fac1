// Package encryption seals media payloads before they reach the blob store.
package encryption

import (
	"fmt"
	"io"
)

// Encryptor turns plaintext media into the bytes stored in the blob store.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
}

// Decryptor reverses an Encryptor.
type Decryptor interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Plaintext stores media unchanged. It is used when encryption is disabled.
type Plaintext struct{}

func (Plaintext) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (Plaintext) Decrypt(r io.Reader, w io.Writer) error {
	return Plaintext{}.Encrypt(r, w)
}

var (
	_ Encryptor = Plaintext{}
	_ Decryptor = Plaintext{}
)
