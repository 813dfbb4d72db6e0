// Package urlcanon turns user-supplied URL text into the canonical string
// used as the deduplication key for ingestion.
package urlcanon

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	whatwg "github.com/nlnwa/whatwg-url/url"
)

// ErrInvalidURL is returned (wrapped) for any input that cannot be canonicalized.
var ErrInvalidURL = errors.New("invalid URL")

// Reconstruct percent-decodes raw exactly once, parses the result as an
// absolute URL following the WHATWG URL standard and returns its serialized form.
//
// Input without a scheme is rejected; no default scheme is assumed.
func Reconstruct(raw string) (string, error) {
	canonical, err := reconstruct(raw)
	if err != nil {
		slog.Debug("invalid URL", "input", raw, "error", err)
		return "", err
	}
	return canonical, nil
}

func reconstruct(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	decoded, err := decodeComponent(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	parsed, err := whatwg.Parse(decoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	return parsed.Href(false), nil
}

// decodeComponent decodes every %XX escape, leaving '+' untouched. Malformed
// escapes and byte sequences that do not form valid UTF-8 are errors.
func decodeComponent(s string) (string, error) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(decoded) {
		return "", errors.New("decoded input is not valid UTF-8")
	}
	return decoded, nil
}
