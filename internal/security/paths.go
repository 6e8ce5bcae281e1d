package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// CleanPath sanitizes a file path to prevent path traversal attacks
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	// Clean the path (removes .., ., //)
	cleaned := filepath.Clean(path)

	// Detect path traversal attempts
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal detected: %s", path)
		}
	}

	return cleaned, nil
}

// ValidateOutputPath checks a local output file (manifest, script, metrics)
// and returns its absolute form. allowedExts may be empty.
func ValidateOutputPath(path string, allowedExts ...string) (string, error) {
	cleaned, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	if len(allowedExts) > 0 {
		ext := strings.ToLower(filepath.Ext(cleaned))
		valid := false
		for _, allowed := range allowedExts {
			if ext == allowed {
				valid = true
				break
			}
		}
		if !valid {
			return "", fmt.Errorf("invalid file extension %q (must be one of %s)", ext, strings.Join(allowedExts, ", "))
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// ValidateServerPath checks a path that is resolved on the SQL Server host,
// so it is only checked for content that can never be a valid file name
func ValidateServerPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("server path cannot be empty")
	}
	if strings.ContainsAny(path, "\x00\r\n") {
		return fmt.Errorf("server path contains control characters: %q", path)
	}
	return nil
}

// ChecksumString returns the hex SHA-256 of s
func ChecksumString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
