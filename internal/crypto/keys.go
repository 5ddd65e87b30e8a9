package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MasterKeyEnv names the environment variable holding the hex master key.
const MasterKeyEnv = "MEDPREDICT_MASTER_KEY_HEX"

// Info strings passed to HKDF. Each derived key has its own label.
const (
	InfoTokenStore = "medpredict/token-store/v1"
)

// DeriveKey derives a 32-byte subkey from the master key using HKDF-SHA256.
func DeriveKey(master []byte, info string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadMasterKey returns the master key from MEDPREDICT_MASTER_KEY_HEX, falling
// back to the hex contents of path.
func ReadMasterKey(path string) ([]byte, error) {
	h := os.Getenv(MasterKeyEnv)
	if h == "" {
		if path == "" {
			return nil, fmt.Errorf("%s not set and no master key file configured", MasterKeyEnv)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s not set and master key file unreadable: %w", MasterKeyEnv, err)
		}
		h = string(data)
	}
	return ParseMasterKey(h)
}

// ParseMasterKey decodes a 64 character hex string into a 32-byte key.
func ParseMasterKey(h string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("master key length must be 32 bytes (hex 64 chars)")
	}
	return b, nil
}

// NewMasterKeyHex returns a fresh random master key encoded as hex.
func NewMasterKeyHex() string {
	return hex.EncodeToString(MustRandom(KeySize))
}
