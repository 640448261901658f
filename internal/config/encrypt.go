package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rowjay/arpm/internal/cryptoutil"
)

// EncryptConfigFile encrypts a config file with the provided key.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	if isEncryptedPath(inputPath) {
		return fmt.Errorf("input %s already looks encrypted", inputPath)
	}
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return fmt.Errorf("refusing to overwrite %s in place", inputPath)
	}
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	parsed, err := cryptoutil.ParseKey("--key", key)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.EncryptConfig(plain, parsed)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, ciphertext, 0o600)
}
