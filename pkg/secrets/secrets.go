// Package secrets provides the password-decryption capability handed to the
// monitoring subsystem. Monitor passwords are stored encrypted in
// configuration; the core asks a Decryptor for the clear text only at
// connection time.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// Decryptor turns a stored (possibly encrypted) password into clear text.
type Decryptor interface {
	Decrypt(stored string) (string, error)
}

// Plaintext is a pass-through Decryptor for deployments that store
// passwords unencrypted.
type Plaintext struct{}

func (Plaintext) Decrypt(stored string) (string, error) { return stored, nil }

const keyFileLen = aes.BlockSize + 32 // iv followed by a 256-bit key

var errShortKeyFile = errors.New("secrets: key file too short")

// AES decrypts hex-encoded AES-256-CBC passwords using an IV and key read
// from a key file. A stored value that is not valid hex is treated as a
// plain-text password and returned as-is, so mixed configurations keep
// working.
type AES struct {
	iv  []byte
	key []byte
}

// LoadAES reads the key material from path.
func LoadAES(path string) (*AES, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: read key file: %w", err)
	}
	if len(raw) < keyFileLen {
		return nil, errShortKeyFile
	}
	return &AES{iv: raw[:aes.BlockSize], key: raw[aes.BlockSize:keyFileLen]}, nil
}

func (a *AES) Decrypt(stored string) (string, error) {
	ct, err := hex.DecodeString(stored)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return stored, nil
	}
	block, err := aes.NewCipher(a.key)
	if err != nil {
		return "", fmt.Errorf("secrets: cipher init: %w", err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, a.iv).CryptBlocks(pt, ct)
	// The encryptor pads with trailing NULs to the block size.
	end := len(pt)
	for end > 0 && pt[end-1] == 0 {
		end--
	}
	return string(pt[:end]), nil
}
