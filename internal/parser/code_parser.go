package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Scanned code length bounds
const (
	MinCodeLength = 5
	MaxCodeLength = 500
)

var codeRegex = regexp.MustCompile(`^[A-Za-z0-9._:/#+\-]+$`)

// NormalizeCode cleans a decoded code and validates it.
// Scanners in keyboard-wedge mode append CR/LF or tabs; surrounding
// whitespace is dropped. The code itself is opaque and keeps its case.
// Accepts codes of 5-500 characters from [A-Za-z0-9._:/#+-].
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)

	if code == "" {
		return "", fmt.Errorf("empty code")
	}
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return "", fmt.Errorf("code must be between %d and %d characters, got %d", MinCodeLength, MaxCodeLength, len(code))
	}
	if !codeRegex.MatchString(code) {
		return "", fmt.Errorf("code contains unsupported characters")
	}

	return code, nil
}

// IsValidCode checks if a string is an acceptable scanned code
func IsValidCode(code string) bool {
	_, err := NormalizeCode(code)
	return err == nil
}
