package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/models"
)

// pollBatch caps how many new rows one tick reads.
const pollBatch = 500

// FeedPoller is the LISTEN-less fallback: it watches activity_feed for rows
// newer than the last one it saw and signals their companies.
//
// The cursor is a created_at timestamp, so a row that commits after a newer
// one was already seen is never signalled by itself. The company snapshot
// still includes it on the next signal for that company or when the client
// reconnects; the refresh is delayed, not lost.
type FeedPoller struct {
	db       *gorm.DB
	hub      Publisher
	interval time.Duration
	log      *zap.Logger

	cursor time.Time
}

func NewFeedPoller(db *gorm.DB, hub Publisher, interval time.Duration, log *zap.Logger) *FeedPoller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &FeedPoller{db: db, hub: hub, interval: interval, log: log.Named("feed_poller")}
}

// Start seeds the cursor with the newest row and polls until ctx is
// cancelled. The returned channel is closed once the goroutine has exited.
func (p *FeedPoller) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if err := p.Seed(ctx); err != nil {
		p.log.Warn("seeding feed cursor failed", zap.Error(err))
	}
	p.log.Info("starting feed poller", zap.Duration("interval", p.interval))

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.log.Info("feed poller stopped")
				return
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
					p.log.Warn("feed poll failed", zap.Error(err))
				}
			}
		}
	}()
	return done
}

// Seed moves the cursor to the newest existing row.
func (p *FeedPoller) Seed(ctx context.Context) error {
	var last models.ActivityFeedEntry
	err := p.db.WithContext(ctx).Select("created_at").Order("created_at DESC").Limit(1).Find(&last).Error
	if err != nil {
		return fmt.Errorf("latest feed entry: %w", err)
	}
	p.cursor = last.CreatedAt
	return nil
}

// Poll signals every company with rows newer than the cursor and returns how
// many companies were signalled. The cursor only advances on success.
func (p *FeedPoller) Poll(ctx context.Context) (int, error) {
	var rows []models.ActivityFeedEntry
	err := p.db.WithContext(ctx).
		Select("company_id", "created_at").
		Where("created_at > ?", p.cursor).
		Order("created_at ASC").
		Limit(pollBatch).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("new feed entries: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	seen := map[string]bool{}
	for _, r := range rows {
		company := ""
		if r.CompanyID != nil {
			company = *r.CompanyID
		}
		if seen[company] {
			continue
		}
		seen[company] = true
		if company == "" {
			p.hub.PublishAll()
		} else {
			p.hub.Publish(company)
		}
	}
	p.cursor = rows[len(rows)-1].CreatedAt
	p.log.Debug("feed changed", zap.Int("rows", len(rows)), zap.Int("companies", len(seen)))
	return len(seen), nil
}
