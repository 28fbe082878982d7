package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/baas"
	"ecodigital/metrics"
	"ecodigital/models"
)

// EvidenceSweeper removes evidence objects that no completed mission points
// at. Objects younger than Grace are left alone so an in-flight completion is
// never raced.
type EvidenceSweeper struct {
	DB       *gorm.DB
	Evidence baas.Storage
	Grace    time.Duration
	Now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewEvidenceSweeper(db *gorm.DB, evidence baas.Storage, grace time.Duration, log *zap.Logger, m *metrics.Metrics) *EvidenceSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &EvidenceSweeper{DB: db, Evidence: evidence, Grace: grace, Now: time.Now, log: log.With(zap.String("component", "sweeper")), metrics: m}
}

// Sweep runs one pass and returns how many objects were deleted.
func (s *EvidenceSweeper) Sweep(ctx context.Context) (int, error) {
	objects, err := s.Evidence.List(ctx, "")
	if err != nil {
		return 0, err
	}
	cutoff := s.Now().Add(-s.Grace)

	var candidates []string
	for _, o := range objects {
		if o.LastModified.Before(cutoff) {
			candidates = append(candidates, o.Key)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var referenced []string
	if err := s.DB.WithContext(ctx).Model(&models.UserMission{}).
		Where("status = ? AND evidence_path IN ?", models.MissionCompleted, candidates).
		Pluck("evidence_path", &referenced).Error; err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(referenced))
	for _, k := range referenced {
		keep[k] = true
	}

	removed := 0
	for _, key := range candidates {
		if keep[key] {
			continue
		}
		if err := s.Evidence.Delete(ctx, key); err != nil {
			s.log.Warn("delete orphan failed", zap.String("key", key), zap.Error(err))
			continue
		}
		removed++
		s.log.Info("orphan evidence removed", zap.String("key", key))
	}
	s.metrics.OrphansRemoved(removed)
	return removed, nil
}

// StartSweepScheduler runs Sweep every interval until the scheduler is shut down.
func (s *EvidenceSweeper) StartSweepScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("orphan sweep failed", zap.Error(err))
				return
			}
			s.log.Debug("orphan sweep done", zap.Int("removed", n))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	return sched, nil
}
