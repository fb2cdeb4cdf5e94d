// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"errors"
	"strconv"
	"strings"
)

// ErrBadChatID is returned for chat ids that are not base-10 integers.
var ErrBadChatID = errors.New("chat id must be an integer")

// ParseChatID converts a stored chat id into the numeric form the Telegram
// API expects. Surrounding spaces are ignored; group chats are negative.
//
// Example:
//
//	id, _ := utils.ParseChatID("123456789")   // 123456789
//	id, _ = utils.ParseChatID("-1001234567")  // -1001234567
//	_, err := utils.ParseChatID("alice")      // ErrBadChatID
func ParseChatID(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrBadChatID
	}
	return n, nil
}

// FormatChatID is the inverse of ParseChatID.
func FormatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
