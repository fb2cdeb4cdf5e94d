// Package notify decides who hears about a support event and pushes the
// corresponding notice through a Deliverer.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-support-desk/internal/dispatch"
	"github.com/tbourn/go-support-desk/internal/domain"
)

var deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "notify_deliveries_total",
	Help: "Notices pushed to chat endpoints, by event kind and result.",
}, []string{"event", "result"})

func init() {
	prometheus.MustRegister(deliveries)
}

// Notice is one outbound chat message. When OpenIssue is set the transport
// attaches an affordance that opens IssueID.
type Notice struct {
	Text      string
	IssueID   string
	OpenIssue bool
}

// Deliverer pushes a notice to a chat endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, chatID string, n Notice) error
}

// AdminDirectory lists the admins that receive manual-mode notices.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
}

// FocusLookup reports whether an admin is already working on an issue.
type FocusLookup interface {
	IsAdminFocused(adminChatID, issueID string) bool
}

// ErrNoRecipient is returned when an event has nobody to address.
var ErrNoRecipient = errors.New("event has no recipient")

// Router turns dispatch events into notices.
type Router struct {
	Out     Deliverer
	Admins  AdminDirectory
	Focus   FocusLookup
	Timeout time.Duration
	Logger  zerolog.Logger

	// Parallelism caps concurrent deliveries per fan-out; 0 means 8.
	Parallelism int
}

// NewRouter returns a router with a per-recipient delivery timeout of 10s.
// focus may be nil in processes that hold no admin sessions.
func NewRouter(out Deliverer, admins AdminDirectory, focus FocusLookup) *Router {
	return &Router{
		Out:     out,
		Admins:  admins,
		Focus:   focus,
		Timeout: 10 * time.Second,
		Logger:  log.With().Str("component", "notify").Logger(),
	}
}

// RegisterAdminHandlers subscribes the admin-facing handlers.
func (r *Router) RegisterAdminHandlers(d *dispatch.Dispatcher) {
	d.Subscribe(dispatch.ManualEscalation, "admin_escalation", r.OnManualEscalation)
	d.Subscribe(dispatch.UserMessage, "admin_user_message", r.OnUserMessage)
}

// RegisterUserHandlers subscribes the requester-facing handler.
func (r *Router) RegisterUserHandlers(d *dispatch.Dispatcher) {
	d.Subscribe(dispatch.AdminMessage, "user_admin_message", r.OnAdminMessage)
}

// EscalationText is the notice admins receive when an issue enters manual
// mode.
func EscalationText(is domain.Issue) string {
	return fmt.Sprintf("Manual assistance requested!\n\nIssue ID: %s\nUser: %s\n\nClick below to view and respond:",
		is.ID, is.Username)
}

// UserMessageText is the notice unfocused admins receive for a new requester
// message.
func UserMessageText(is domain.Issue, m domain.Message) string {
	return fmt.Sprintf("New message in Manual Issue #%s\n\nFrom: %s\nMessage: %s\n\nClick below to view and respond:",
		is.ID, m.Sender, m.Text)
}

// OnManualEscalation notifies every admin that an issue needs a human.
func (r *Router) OnManualEscalation(ctx context.Context, ev dispatch.Event) error {
	n := Notice{Text: EscalationText(ev.Issue), IssueID: ev.Issue.ID, OpenIssue: true}
	return r.fanOut(ctx, ev, func(domain.Admin) Notice { return n })
}

// OnUserMessage forwards a requester message to every admin. Admins already
// focused on the issue get the bare text.
func (r *Router) OnUserMessage(ctx context.Context, ev dispatch.Event) error {
	if ev.Message == nil {
		return fmt.Errorf("user message event for issue %s: %w", ev.Issue.ID, ErrNoRecipient)
	}
	full := Notice{Text: UserMessageText(ev.Issue, *ev.Message), IssueID: ev.Issue.ID, OpenIssue: true}
	bare := Notice{Text: ev.Message.Text, IssueID: ev.Issue.ID}
	return r.fanOut(ctx, ev, func(a domain.Admin) Notice {
		if r.Focus != nil && r.Focus.IsAdminFocused(a.ChatID, ev.Issue.ID) {
			return bare
		}
		return full
	})
}

// OnAdminMessage relays an admin reply to the issue's requester.
func (r *Router) OnAdminMessage(ctx context.Context, ev dispatch.Event) error {
	if ev.Message == nil || ev.Issue.ChatID == "" {
		return fmt.Errorf("admin message event for issue %s: %w", ev.Issue.ID, ErrNoRecipient)
	}
	err := r.deliver(ctx, ev.Kind, ev.Issue.ChatID, Notice{Text: ev.Message.Text, IssueID: ev.Issue.ID})
	if err != nil {
		return fmt.Errorf("deliver to requester %s: %w", ev.Issue.ChatID, err)
	}
	return nil
}

// fanOut delivers to every admin, a bounded number at a time. A failed
// recipient is logged and counted; the rest still receive their notice.
func (r *Router) fanOut(ctx context.Context, ev dispatch.Event, notice func(domain.Admin) Notice) error {
	admins, err := r.Admins.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		r.Logger.Warn().Str("event", ev.Kind.String()).Str("issue_id", ev.Issue.ID).Msg("no registered admins")
		return nil
	}

	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(r.parallelism())
	for _, a := range admins {
		g.Go(func() error {
			if err := r.deliver(ctx, ev.Kind, a.ChatID, notice(a)); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := int(failed.Load()); n == len(admins) {
		return fmt.Errorf("%s: delivery failed for all %d admins", ev.Kind, n)
	}
	return nil
}

func (r *Router) deliver(ctx context.Context, kind dispatch.EventKind, chatID string, n Notice) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	logger := r.Logger.With().Str("event", kind.String()).Str("recipient", chatID).Str("issue_id", n.IssueID).Logger()
	if err := r.Out.Deliver(ctx, chatID, n); err != nil {
		deliveries.WithLabelValues(kind.String(), "error").Inc()
		logger.Error().Err(err).Msg("delivery failed")
		return err
	}
	deliveries.WithLabelValues(kind.String(), "ok").Inc()
	logger.Info().Bool("open_issue", n.OpenIssue).Msg("notice delivered")
	return nil
}

func (r *Router) parallelism() int {
	if r.Parallelism > 0 {
		return r.Parallelism
	}
	return 8
}

func (r *Router) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 10 * time.Second
}
