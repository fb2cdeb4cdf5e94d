package domain

import (
	"errors"
	"fmt"
)

// IssueStatus is the lifecycle status of an Issue.
type IssueStatus string

const (
	StatusOpen   IssueStatus = "open"
	StatusManual IssueStatus = "manual"
	StatusClosed IssueStatus = "closed"
)

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusManual, StatusClosed:
		return true
	}
	return false
}

// Trigger is an event that may move an issue between statuses.
type Trigger string

const (
	TriggerEscalate    Trigger = "escalate"     // user or admin asks for a human
	TriggerAdminReply  Trigger = "admin_reply"  // admin posts into the thread
	TriggerUserMessage Trigger = "user_message" // requester posts into the thread
	TriggerClose       Trigger = "close"
)

// Transition precondition failures. These are "no-op" outcomes that callers
// present to users; they never indicate a system fault.
var (
	ErrIssueClosed   = errors.New("issue is closed")
	ErrAlreadyManual = errors.New("issue is already in manual mode")
	ErrNotOpen       = errors.New("issue is not open")
)

// Next returns the status an issue in status s moves to when t fires.
// A returned status equal to s means the trigger is accepted without a
// status change (a user message in open or manual, an admin reply in manual).
//
//	open   --escalate-->    manual
//	open   --admin_reply--> manual
//	open   --close-->       closed
//	manual --close-->       closed
//	manual --escalate-->    ErrAlreadyManual
//	closed --*-->           ErrIssueClosed
func (s IssueStatus) Next(t Trigger) (IssueStatus, error) {
	if s == StatusClosed {
		return s, ErrIssueClosed
	}
	switch t {
	case TriggerEscalate:
		if s == StatusManual {
			return s, ErrAlreadyManual
		}
		if s != StatusOpen {
			return s, ErrNotOpen
		}
		return StatusManual, nil
	case TriggerAdminReply:
		return StatusManual, nil
	case TriggerUserMessage:
		return s, nil
	case TriggerClose:
		return StatusClosed, nil
	}
	return s, fmt.Errorf("unknown trigger %q", t)
}

// AutoReplies reports whether the responder answers user messages in s.
func (s IssueStatus) AutoReplies() bool { return s == StatusOpen }
