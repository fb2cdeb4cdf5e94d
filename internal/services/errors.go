// Package services holds the business logic of the support desk: the issue
// state machine, the automatic responder policy, and admin and FAQ
// management. This file centralizes the service-level error values so that
// handlers can map them to HTTP results consistently.
package services

import (
	"errors"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// Not-found errors.
var (
	ErrIssueNotFound = errors.New("issue not found")
	ErrFAQNotFound   = errors.New("faq entry not found")
)

// Conflict / precondition errors. The state-machine ones alias the domain
// values so errors.Is works against either package.
var (
	ErrIssueAlreadyOpen = errors.New("user already has an open issue")
	ErrAdminExists      = errors.New("admin already registered")
	ErrIssueClosed      = domain.ErrIssueClosed
	ErrAlreadyManual    = domain.ErrAlreadyManual
	ErrNotOpen          = domain.ErrNotOpen

	// ErrConcurrentUpdate is returned when a transition lost a race with
	// another writer; the caller may retry.
	ErrConcurrentUpdate = errors.New("issue was modified concurrently")
)

// Validation errors.
var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrMessageTooLong   = errors.New("message too long")
	ErrInvalidChatID    = errors.New("chat id is required")
	ErrInvalidUsername  = errors.New("username is required")
	ErrReservedUsername = errors.New("username is reserved")
	ErrEmptyFAQ         = errors.New("question and answer are required")
)

// ErrResponderUnavailable wraps embedding or completion failures. The user
// message that triggered the responder is already persisted when it occurs.
var ErrResponderUnavailable = errors.New("automatic responder unavailable")
