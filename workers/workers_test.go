package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/models"
	"ecodigital/testdb"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(companyID string) { r.add(companyID) }
func (r *recorder) PublishAll()              { r.add("*") }

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeConn struct {
	notes  chan *pgconn.Notification
	closed chan struct{}
}

func (f *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n, ok := <-f.notes:
		if !ok {
			return nil, errors.New("connection reset")
		}
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close(context.Context) error {
	close(f.closed)
	return nil
}

func TestFeedListenerRelaysAndReconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	first := &fakeConn{notes: make(chan *pgconn.Notification), closed: make(chan struct{})}
	second := &fakeConn{notes: make(chan *pgconn.Notification), closed: make(chan struct{})}
	var dials int
	rec := &recorder{}

	l := NewFeedListener("", rec, zap.NewNop())
	l.RetryDelay = 10 * time.Millisecond
	l.Dial = func(context.Context) (Notifier, error) {
		dials++
		switch dials {
		case 1:
			return nil, errors.New("refused")
		case 2:
			return first, nil
		default:
			return second, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := l.Start(ctx)

	first.notes <- &pgconn.Notification{Channel: models.FeedChannel, Payload: "c1"}
	first.notes <- &pgconn.Notification{Channel: models.FeedChannel, Payload: ""}
	close(first.notes)
	<-first.closed

	second.notes <- &pgconn.Notification{Channel: models.FeedChannel, Payload: "c2"}
	cancel()
	<-done
	<-second.closed

	assert.Equal(t, []string{"*", "c1", "*", "*", "c2"}, rec.snapshot())
	assert.Equal(t, 3, dials)
}

func addEntry(t *testing.T, db *gorm.DB, profileID string, companyID *string, at time.Time) {
	t.Helper()
	e := models.NewMissionCompletedEntry(profileID, companyID, "M", 10)
	e.CreatedAt = at
	require.NoError(t, db.Create(&e).Error)
}

func TestFeedPollerSignalsNewRows(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	a := testdb.Company(t, db, "Acme")
	b := testdb.Company(t, db, "Beta")
	ana := testdb.Profile(t, db, "Ana", models.RoleEmployee, a.ID, 0)
	bia := testdb.Profile(t, db, "Bia", models.RoleEmployee, b.ID, 0)
	base := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)

	addEntry(t, db, ana.ID, &a.ID, base)
	rec := &recorder{}
	p := NewFeedPoller(db, rec, time.Second, zap.NewNop())
	require.NoError(t, p.Seed(ctx))

	n, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rows before the seed are not signalled")

	addEntry(t, db, ana.ID, &a.ID, base.Add(time.Minute))
	addEntry(t, db, ana.ID, &a.ID, base.Add(2*time.Minute))
	addEntry(t, db, bia.ID, &b.ID, base.Add(3*time.Minute))
	addEntry(t, db, bia.ID, nil, base.Add(4*time.Minute))

	n, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{a.ID, b.ID, "*"}, rec.snapshot())

	n, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFeedPollerStops(t *testing.T) {
	db := testdb.Open(t)
	// The sql.DB opener goroutine lives until cleanup.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := NewFeedPoller(db, &recorder{}, 5*time.Millisecond, zap.NewNop()).Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
}
