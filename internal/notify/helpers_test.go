package notify

import (
	"testing"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/domain"
)

func issueUpdate(t *testing.T) changefeed.Change {
	t.Helper()
	old := manualIssue
	old.Status = domain.StatusOpen
	c, err := changefeed.IssueUpdated(old, manualIssue)
	if err != nil {
		t.Fatalf("IssueUpdated: %v", err)
	}
	return c
}
