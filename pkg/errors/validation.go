package errors

import (
	"strings"
	"unicode"
)

// ValidateStorePath validates an absolute Nix store path for safety and
// shape before it is handed to the parsers.
//
// The validation rules are intentionally conservative:
//   - No empty paths
//   - No control characters or null bytes
//   - Must be absolute
//   - No path traversal sequences (..)
//   - No backslashes (Windows path injection)
//   - Maximum length of 4096 characters
//
// Hash-level validation is done separately by the storepath package.
func ValidateStorePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "store path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "store path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "store path contains invalid characters")
		}
	}

	if !strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "store path must be absolute")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "store path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "store path cannot contain backslashes")
	}

	return nil
}

// ValidateDrvPath validates a derivation path. In addition to the store
// path rules it requires the .drv extension.
func ValidateDrvPath(path string) error {
	if err := ValidateStorePath(path); err != nil {
		return err
	}

	if !strings.HasSuffix(path, ".drv") {
		return New(ErrCodeInvalidPath, "derivation path must end in .drv: %q", path)
	}

	return nil
}

// ValidateCacheURL validates a binary cache root URL.
// It ensures the URL has a safe scheme (http or https) and no trailing
// whitespace that would corrupt narinfo request URLs.
func ValidateCacheURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "cache URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "cache URL must use http or https scheme")
	}

	if strings.TrimSpace(rawURL) != rawURL {
		return New(ErrCodeInvalidInput, "cache URL cannot contain leading or trailing whitespace")
	}

	return nil
}
