package cryptoutil

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the length of every key arpm accepts.
const KeySize = 32

// Settings a key can come from, used to label key errors.
const (
	ArchiveKeySetting = "archive.encryption_key"
	ConfigKeySetting  = "ARPM_CONFIG_KEY"
)

// KeyError names the setting that held an unusable key.
type KeyError struct {
	Setting string
	Err     error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Setting, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// ParseKey decodes the 32-byte key held by setting. The value may carry a
// "base64:" or "hex:" prefix; without one, either encoding is accepted.
func ParseKey(setting, value string) ([]byte, error) {
	data, err := decodeKey(strings.TrimSpace(value))
	if err != nil {
		return nil, &KeyError{Setting: setting, Err: err}
	}
	if len(data) != KeySize {
		return nil, &KeyError{Setting: setting, Err: fmt.Errorf("key is %d bytes, want %d", len(data), KeySize)}
	}
	return data, nil
}

func decodeKey(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("key is empty")
	}
	if rest, ok := strings.CutPrefix(value, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	if rest, ok := strings.CutPrefix(value, "hex:"); ok {
		return hex.DecodeString(rest)
	}
	// 64 hex digits are also valid base64, so a base64 result only wins at the right size.
	b64, b64Err := base64.StdEncoding.DecodeString(value)
	if b64Err == nil && len(b64) == KeySize {
		return b64, nil
	}
	if data, err := hex.DecodeString(value); err == nil {
		return data, nil
	}
	if b64Err == nil {
		return b64, nil
	}
	return nil, errors.New("key is neither base64 nor hex")
}
