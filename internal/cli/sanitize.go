package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize bounds one prompt line. 4KB is a conservative
	// default; override it with EnvMaxInputSize.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize is the environment variable overriding the limit.
	EnvMaxInputSize = "QUARTET_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput enforces the size limit, validates UTF-8 and strips
// control characters other than newline, tab and carriage return. This
// keeps ANSI escapes and NULs out of prompts, logs and stored messages.
func SanitizeInput(input string) (string, error) {
	limit := maxInputSize()
	if len(input) > limit {
		// Reject rather than truncate so the stored prompt is exactly
		// what the pipeline saw.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
