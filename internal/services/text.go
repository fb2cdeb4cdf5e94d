package services

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxMessageRunes matches the longest text a chat bot can deliver.
const DefaultMaxMessageRunes = 4096

// normalizeText trims and NFC-normalizes a message body and enforces limits.
func normalizeText(s string, maxRunes int) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptyMessage
	}
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		return "", ErrMessageTooLong
	}
	return s, nil
}

// normalizeName trims and NFC-normalizes a display name or chat id.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
