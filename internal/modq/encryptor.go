package modq

import "io"

// Encryptor protects data at rest, primarily the saved browser session. Setup
// runs once to generate key material; Unlock derives a DecryptionContext from
// the operator's passphrase.
type Encryptor interface {
	Setup(passphrase string) error
	Encrypt(r io.Reader, w io.Writer) error
	Unlock(passphrase string) (DecryptionContext, error)
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity for decrypting data.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
