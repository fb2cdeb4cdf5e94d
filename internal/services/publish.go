package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/domain"
)

// publishTimeout bounds how long a committed write waits on a slow feed.
const publishTimeout = 5 * time.Second

// The write is already committed when these run, so feed failures are
// logged and never surface to the caller.

func publishMessage(ctx context.Context, feed changefeed.Publisher, m *domain.Message) {
	if feed == nil || m == nil {
		return
	}
	c, err := changefeed.MessageInserted(*m)
	if err == nil {
		err = publish(ctx, feed, c)
	}
	if err != nil {
		log.Warn().Err(err).Str("issue_id", m.IssueID).Str("message_id", m.ID).Msg("publish message change")
	}
}

func publishIssue(ctx context.Context, feed changefeed.Publisher, old, cur *domain.Issue) {
	if feed == nil || old == nil || cur == nil || old.Status == cur.Status {
		return
	}
	c, err := changefeed.IssueUpdated(*old, *cur)
	if err == nil {
		err = publish(ctx, feed, c)
	}
	if err != nil {
		log.Warn().Err(err).Str("issue_id", cur.ID).Str("status", string(cur.Status)).Msg("publish issue change")
	}
}

func publish(ctx context.Context, feed changefeed.Publisher, c changefeed.Change) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return feed.Publish(ctx, c)
}
