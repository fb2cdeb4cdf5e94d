package domain

import "strings"

// Reserved sender tags. Any other sender value is the requester's display name.
const (
	SenderAdmin = "Admin"
	SenderGPT   = "GPT"
)

// SenderKind classifies a Message.Sender value.
type SenderKind int

const (
	SenderRequester SenderKind = iota
	SenderKindAdmin
	SenderKindAI
)

func (k SenderKind) String() string {
	switch k {
	case SenderKindAdmin:
		return "admin"
	case SenderKindAI:
		return "ai"
	default:
		return "requester"
	}
}

// KindOf maps a sender tag to its actor kind.
func KindOf(sender string) SenderKind {
	switch sender {
	case SenderAdmin:
		return SenderKindAdmin
	case SenderGPT:
		return SenderKindAI
	default:
		return SenderRequester
	}
}

// ReservedSender reports whether name collides with a reserved tag
// (case-insensitive, surrounding spaces ignored).
func ReservedSender(name string) bool {
	n := strings.TrimSpace(name)
	return strings.EqualFold(n, SenderAdmin) || strings.EqualFold(n, SenderGPT)
}
