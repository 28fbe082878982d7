package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"ecodigital/models"
)

// Publisher receives "company changed" signals. *services.FeedHub implements it.
type Publisher interface {
	Publish(companyID string)
	PublishAll()
}

// Notifier is a connection that is already listening on the feed channel.
type Notifier interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// FeedListener relays Postgres NOTIFY events for activity_feed inserts to the
// hub. It reconnects after RetryDelay whenever the connection drops.
type FeedListener struct {
	Dial       func(ctx context.Context) (Notifier, error)
	RetryDelay time.Duration

	hub Publisher
	log *zap.Logger
}

func NewFeedListener(dsn string, hub Publisher, log *zap.Logger) *FeedListener {
	return &FeedListener{
		Dial:       func(ctx context.Context) (Notifier, error) { return ListenPostgres(ctx, dsn) },
		RetryDelay: 5 * time.Second,
		hub:        hub,
		log:        log.Named("feed_listener"),
	}
}

// ListenPostgres opens a dedicated pgx connection and subscribes to the feed
// channel. Pooled connections cannot be used: LISTEN is per session.
func ListenPostgres(ctx context.Context, dsn string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{models.FeedChannel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", models.FeedChannel, err)
	}
	return conn, nil
}

// Start runs the listener until ctx is cancelled. The returned channel is
// closed once the goroutine has exited.
func (l *FeedListener) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	l.log.Info("starting feed listener", zap.String("channel", models.FeedChannel))
	go func() {
		defer close(done)
		l.run(ctx)
	}()
	return done
}

func (l *FeedListener) run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			l.log.Info("feed listener stopped")
			return
		}
		l.log.Warn("feed listener disconnected, retrying", zap.Error(err), zap.Duration("in", l.RetryDelay))

		t := time.NewTimer(l.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			l.log.Info("feed listener stopped")
			return
		case <-t.C:
		}
	}
}

func (l *FeedListener) listen(ctx context.Context) error {
	conn, err := l.Dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	// Anything inserted while disconnected is unknown; wake everyone once.
	l.hub.PublishAll()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n == nil {
			return errors.New("nil notification")
		}
		if n.Payload == "" {
			l.hub.PublishAll()
			continue
		}
		l.log.Debug("feed changed", zap.String("company_id", n.Payload))
		l.hub.Publish(n.Payload)
	}
}
