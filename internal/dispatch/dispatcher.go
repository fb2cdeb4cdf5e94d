// Package dispatch turns raw change-feed rows into typed support events and
// fans each one out to the listeners registered for its kind.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/domain"
)

// EventKind is the semantic meaning of a change.
type EventKind int

const (
	// ManualEscalation fires when an issue enters manual mode.
	ManualEscalation EventKind = iota + 1
	// UserMessage fires when the requester writes into a manual issue.
	UserMessage
	// AdminMessage fires when an admin writes into a manual issue.
	AdminMessage
)

func (k EventKind) String() string {
	switch k {
	case ManualEscalation:
		return "manual_escalation"
	case UserMessage:
		return "user_message"
	case AdminMessage:
		return "admin_message"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

// Event is delivered to listeners. Issue is the state observed at delivery
// time; Message is nil for ManualEscalation.
type Event struct {
	Kind    EventKind
	Issue   domain.Issue
	Message *domain.Message
}

// Handler reacts to one event. Returned errors are logged, never retried.
type Handler func(ctx context.Context, ev Event) error

// IssueLookup resolves the current state of an issue. Bots implement it over
// the HTTP API; the server implements it over the store.
type IssueLookup interface {
	GetIssue(ctx context.Context, id string) (*domain.Issue, error)
	ListMessages(ctx context.Context, issueID string) ([]domain.Message, error)
}

type listener struct {
	name string
	h    Handler
}

// Dispatcher reads a changefeed.Source and invokes listeners.
type Dispatcher struct {
	src    changefeed.Source
	lookup IssueLookup
	logger zerolog.Logger

	handlerTimeout time.Duration
	lookupTimeout  time.Duration
	dedupeTTL      time.Duration
	dedupeSize     int

	mu        sync.RWMutex
	listeners map[EventKind][]listener

	seenMu sync.Mutex
	seen   *expirable.LRU[string, struct{}]
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithHandlerTimeout bounds each listener invocation.
func WithHandlerTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.handlerTimeout = t
		}
	}
}

// WithDedupeTTL sets how long a change key suppresses redeliveries.
func WithDedupeTTL(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.dedupeTTL = t
		}
	}
}

// WithDedupeSize caps how many change keys are remembered. The least
// recently seen keys are evicted first.
func WithDedupeSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.dedupeSize = n
		}
	}
}

// New builds a dispatcher over src. lookup is consulted for message inserts
// that some listener cares about, so classification uses the issue's current
// status.
func New(src changefeed.Source, lookup IssueLookup, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		src:            src,
		lookup:         lookup,
		logger:         log.With().Str("component", "dispatch").Logger(),
		handlerTimeout: 15 * time.Second,
		lookupTimeout:  10 * time.Second,
		dedupeTTL:      10 * time.Minute,
		dedupeSize:     8192,
		listeners:      make(map[EventKind][]listener),
	}
	for _, o := range opts {
		o(d)
	}
	d.seen = expirable.NewLRU[string, struct{}](d.dedupeSize, nil, d.dedupeTTL)
	return d
}

// Subscribe registers h for kind. name appears in logs and metrics.
func (d *Dispatcher) Subscribe(kind EventKind, name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[kind] = append(d.listeners[kind], listener{name: name, h: h})
}

// Run consumes the source until ctx is cancelled or the source closes. Each
// change is handled on its own goroutine; Run waits for in-flight handling
// before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	changes, err := d.src.Changes(ctx)
	if err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}
	d.logger.Info().Msg("dispatcher started")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("change feed closed")
			}
			if !d.firstSeen(c.Key()) {
				changesTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			wg.Add(1)
			go func(c changefeed.Change) {
				defer wg.Done()
				d.Dispatch(ctx, c)
			}(c)
		}
	}
}

// Dispatch classifies one change and delivers the resulting event, if any,
// to every listener of its kind. It returns once all listeners finished.
func (d *Dispatcher) Dispatch(ctx context.Context, c changefeed.Change) {
	ev, ok, err := d.classify(ctx, c)
	switch {
	case err != nil:
		changesTotal.WithLabelValues("error").Inc()
		d.logger.Error().Err(err).Str("change", c.Key()).Msg("classify change")
		return
	case !ok:
		changesTotal.WithLabelValues("ignored").Inc()
		d.logger.Debug().Str("change", c.Key()).Msg("change not surfaced")
		return
	}
	changesTotal.WithLabelValues("dispatched").Inc()
	d.deliver(ctx, ev)
}

func (d *Dispatcher) classify(ctx context.Context, c changefeed.Change) (Event, bool, error) {
	switch {
	case c.Table == changefeed.TableIssues && c.Op == changefeed.OpUpdate:
		return d.classifyIssue(c)
	case c.Table == changefeed.TableMessages && c.Op == changefeed.OpInsert:
		return d.classifyMessage(ctx, c)
	default:
		return Event{}, false, nil
	}
}

func (d *Dispatcher) classifyIssue(c changefeed.Change) (Event, bool, error) {
	cur, err := c.Issue()
	if err != nil {
		return Event{}, false, err
	}
	if cur.Status != domain.StatusManual {
		return Event{}, false, nil
	}
	old, hasOld, err := c.OldIssue()
	if err != nil {
		return Event{}, false, err
	}
	// Without a previous image every manual update counts; the dedupe key
	// absorbs repeats.
	if hasOld && old.Status == domain.StatusManual {
		return Event{}, false, nil
	}
	return Event{Kind: ManualEscalation, Issue: cur}, true, nil
}

func (d *Dispatcher) classifyMessage(ctx context.Context, c changefeed.Change) (Event, bool, error) {
	m, err := c.Message()
	if err != nil {
		return Event{}, false, err
	}
	if m.IssueID == "" {
		return Event{}, false, fmt.Errorf("%w: message %q has no issue id", changefeed.ErrMalformed, m.ID)
	}

	var kind EventKind
	switch domain.KindOf(m.Sender) {
	case domain.SenderKindAI:
		return Event{}, false, nil
	case domain.SenderKindAdmin:
		kind = AdminMessage
	default:
		kind = UserMessage
	}
	if !d.hasListeners(kind) {
		return Event{}, false, nil
	}

	lctx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	is, err := d.lookup.GetIssue(lctx, m.IssueID)
	if err != nil {
		return Event{}, false, fmt.Errorf("lookup issue %s: %w", m.IssueID, err)
	}
	if is.Status != domain.StatusManual {
		return Event{}, false, nil
	}

	if c.Truncated || m.Text == "" {
		full, err := d.fetchMessage(lctx, m.IssueID, m.ID)
		if err != nil {
			return Event{}, false, err
		}
		m = full
	}

	return Event{Kind: kind, Issue: *is, Message: &m}, true, nil
}

func (d *Dispatcher) hasListeners(kind EventKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[kind]) > 0
}

func (d *Dispatcher) fetchMessage(ctx context.Context, issueID, id string) (domain.Message, error) {
	msgs, err := d.lookup.ListMessages(ctx, issueID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("list messages %s: %w", issueID, err)
	}
	for _, m := range msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Message{}, fmt.Errorf("message %s not found in issue %s", id, issueID)
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	d.mu.RLock()
	ls := append([]listener(nil), d.listeners[ev.Kind]...)
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, l := range ls {
		wg.Add(1)
		go func(l listener) {
			defer wg.Done()
			d.invoke(ctx, l, ev)
		}(l)
	}
	wg.Wait()
}

func (d *Dispatcher) invoke(ctx context.Context, l listener, ev Event) {
	logger := d.logger.With().
		Str("listener", l.name).
		Str("event", ev.Kind.String()).
		Str("issue_id", ev.Issue.ID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			listenerResults.WithLabelValues(l.name, "panic").Inc()
			logger.Error().Interface("panic", r).Msg("listener panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	if err := l.h(ctx, ev); err != nil {
		listenerResults.WithLabelValues(l.name, "error").Inc()
		logger.Error().Err(err).Msg("listener failed")
		return
	}
	listenerResults.WithLabelValues(l.name, "ok").Inc()
}

// firstSeen records key and reports whether it was new within the TTL. A
// repeat does not extend the window.
func (d *Dispatcher) firstSeen(key string) bool {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()

	if _, ok := d.seen.Get(key); ok {
		return false
	}
	d.seen.Add(key, struct{}{})
	return true
}
