package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// File calculates the SHA-256 checksum of a file and returns it hex encoded.
func File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the file at filePath matches the expected checksum.
func Verify(filePath, expected string) (bool, error) {
	actual, err := File(filePath)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
