package changefeed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	listenerReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "changefeed_reconnects_total",
		Help: "LISTEN connections re-established after a failure.",
	})
	listenerDecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "changefeed_decode_errors_total",
		Help: "Notifications dropped because their payload could not be decoded.",
	})
)

func init() {
	prometheus.MustRegister(listenerReconnects, listenerDecodeErrors)
}

// notifyConn is the subset of *pgx.Conn the listener needs.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGListener is a Source backed by Postgres LISTEN/NOTIFY on a dedicated
// connection. After a connection failure it reconnects every Reconnect
// interval until its context is cancelled.
type PGListener struct {
	DSN       string
	Channel   string
	Reconnect time.Duration
	Buffer    int
	Logger    zerolog.Logger

	connect func(ctx context.Context, dsn string) (notifyConn, error)
}

// NewPGListener returns a listener for channel on the database at dsn.
func NewPGListener(dsn, channel string, reconnect time.Duration, buffer int) *PGListener {
	return &PGListener{
		DSN:       dsn,
		Channel:   channel,
		Reconnect: reconnect,
		Buffer:    buffer,
		Logger:    log.With().Str("component", "changefeed").Str("channel", channel).Logger(),
	}
}

func pgxConnect(ctx context.Context, dsn string) (notifyConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Changes starts listening and returns the decoded change stream.
func (l *PGListener) Changes(ctx context.Context) (<-chan Change, error) {
	if l.connect == nil {
		l.connect = pgxConnect
	}
	if l.Reconnect <= 0 {
		l.Reconnect = 2 * time.Second
	}
	if l.Buffer < 1 {
		l.Buffer = 64
	}

	// First connection is synchronous so configuration errors surface early.
	conn, err := l.listen(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Change, l.Buffer)
	go l.run(ctx, conn, out)
	return out, nil
}

func (l *PGListener) listen(ctx context.Context) (notifyConn, error) {
	conn, err := l.connect(ctx, l.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.Channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, err
	}
	return conn, nil
}

func (l *PGListener) run(ctx context.Context, conn notifyConn, out chan<- Change) {
	defer close(out)
	for {
		err := l.pump(ctx, conn, out)
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		l.Logger.Warn().Err(err).Dur("retry_in", l.Reconnect).Msg("change feed connection lost")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.Reconnect):
			}
			conn, err = l.listen(ctx)
			if err == nil {
				listenerReconnects.Inc()
				l.Logger.Info().Msg("change feed reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			l.Logger.Warn().Err(err).Msg("change feed reconnect failed")
		}
	}
}

// pump forwards notifications until the connection fails or ctx ends.
func (l *PGListener) pump(ctx context.Context, conn notifyConn, out chan<- Change) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := Decode([]byte(n.Payload))
		if err != nil {
			listenerDecodeErrors.Inc()
			l.Logger.Error().Err(err).Int("payload_bytes", len(n.Payload)).Msg("dropping notification")
			continue
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
