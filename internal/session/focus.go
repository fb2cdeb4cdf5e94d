// Package session keeps per-admin conversation state for the admin bot.
// Nothing here is persisted; it lives as long as the bot process.
package session

import "sync"

// FocusTable maps an admin chat to the issue that admin is working on.
type FocusTable struct {
	mu    sync.RWMutex
	focus map[string]string
}

func NewFocusTable() *FocusTable {
	return &FocusTable{focus: make(map[string]string)}
}

// Focus points adminChatID at issueID, replacing any previous focus.
func (t *FocusTable) Focus(adminChatID, issueID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focus[adminChatID] = issueID
}

// Clear drops the admin's focus and returns the issue it pointed at.
func (t *FocusTable) Clear(adminChatID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.focus[adminChatID]
	delete(t.focus, adminChatID)
	return id, ok
}

// Active returns the focused issue for adminChatID.
func (t *FocusTable) Active(adminChatID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.focus[adminChatID]
	return id, ok
}

// IsAdminFocused reports whether adminChatID is currently focused on issueID.
func (t *FocusTable) IsAdminFocused(adminChatID, issueID string) bool {
	id, ok := t.Active(adminChatID)
	return ok && id == issueID
}

// ClearIssue drops every focus pointing at issueID, e.g. after it closes.
// It returns the affected admin chats.
func (t *FocusTable) ClearIssue(issueID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for chat, id := range t.focus {
		if id == issueID {
			out = append(out, chat)
			delete(t.focus, chat)
		}
	}
	return out
}
