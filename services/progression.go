package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ecodigital/apperr"
	"ecodigital/metrics"
	"ecodigital/models"
	"ecodigital/ranks"
)

// ProgressionService owns every XP change. Each change runs in one
// transaction that also appends the matching feed entries.
type ProgressionService struct {
	DB      *gorm.DB
	Ranks   *ranks.Table
	Now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewProgressionService(db *gorm.DB, table *ranks.Table, log *zap.Logger, m *metrics.Metrics) *ProgressionService {
	if table == nil {
		table = ranks.Default
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressionService{DB: db, Ranks: table, Now: time.Now, log: log.With(zap.String("component", "progression")), metrics: m}
}

// Award is the outcome of an XP change.
type Award struct {
	XP      int64
	Profile *models.Profile
	Before  ranks.Patent
	After   ranks.Patent
}

// RankedUp reports whether the change crossed into a higher patent.
func (a *Award) RankedUp() bool { return a.After.MinXP > a.Before.MinXP }

// awardXP adds xp to the profile inside tx and appends a rank_up entry
// stamped at when the patent changes. The row stays locked until tx ends and
// the patents are derived from the stored total, so overlapping awards each
// see the total they produced.
func (s *ProgressionService) awardXP(tx *gorm.DB, profileID string, xp int64, at time.Time) (*Award, error) {
	var prof models.Profile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", profileID).First(&prof).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrProfileMissing
		}
		return nil, err
	}

	if err := tx.Model(&models.Profile{}).Where("id = ?", profileID).
		UpdateColumn("xp_points", gorm.Expr("xp_points + ?", xp)).Error; err != nil {
		return nil, err
	}
	var total int64
	if err := tx.Model(&models.Profile{}).Where("id = ?", profileID).Pluck("xp_points", &total).Error; err != nil {
		return nil, err
	}
	prof.XPPoints = total

	award := &Award{XP: xp, Profile: &prof, Before: s.Ranks.For(total - xp), After: s.Ranks.For(total)}
	if award.RankedUp() {
		entry := models.NewRankUpEntry(prof.ID, prof.CompanyID, award.After.Name)
		entry.CreatedAt = at
		if err := tx.Create(&entry).Error; err != nil {
			return nil, err
		}
	}
	return award, nil
}

// AwardXP grants xp outside of a mission, e.g. an admin bonus.
func (s *ProgressionService) AwardXP(ctx context.Context, profileID string, xp int64, reason string) (*Award, error) {
	if xp <= 0 {
		return nil, apperr.Invalid("XP deve ser positivo.")
	}
	var award *Award
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		award, err = s.awardXP(tx, profileID, xp, s.Now())
		return err
	})
	if err != nil {
		return nil, wrapDB("award xp", err)
	}

	s.metrics.XPAwarded(xp)
	s.log.Info("xp awarded",
		zap.String("profile_id", profileID),
		zap.Int64("xp", xp),
		zap.Int64("total", award.Profile.XPPoints),
		zap.String("patent", award.After.Name),
		zap.String("reason", reason),
	)
	return award, nil
}

// CompleteMission is the reward procedure: it checks the mission is in
// progress for the profile, marks it completed with the evidence path, adds
// the mission's XP and appends mission_completed (and maybe rank_up) entries.
func (s *ProgressionService) CompleteMission(ctx context.Context, profileID, missionID, evidencePath string) (*Award, error) {
	var award *Award
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mission models.Mission
		if err := tx.Where("id = ?", missionID).First(&mission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrMissionNotFound
			}
			return err
		}

		var um models.UserMission
		if err := tx.Where("profile_id = ? AND mission_id = ?", profileID, missionID).First(&um).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrNotInProgress
			}
			return err
		}
		switch um.Status {
		case models.MissionInProgress:
		case models.MissionCompleted:
			return apperr.ErrAlreadyDone
		default:
			return apperr.ErrNotInProgress
		}

		now := s.Now()
		res := tx.Model(&models.UserMission{}).
			Where("id = ? AND status = ?", um.ID, models.MissionInProgress).
			Updates(map[string]any{
				"status":        models.MissionCompleted,
				"evidence_path": evidencePath,
				"completed_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperr.ErrAlreadyDone
		}

		// A rank up sorts just after the completion that caused it.
		var err error
		award, err = s.awardXP(tx, profileID, mission.XPReward, now.Add(time.Microsecond))
		if err != nil {
			return err
		}

		entry := models.NewMissionCompletedEntry(profileID, award.Profile.CompanyID, mission.Title, mission.XPReward)
		entry.CreatedAt = now
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append feed entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapDB("complete mission", err)
	}

	s.metrics.MissionCompleted(award.XP)
	s.log.Info("mission completed",
		zap.String("profile_id", profileID),
		zap.String("mission_id", missionID),
		zap.Int64("xp", award.XP),
		zap.Bool("rank_up", award.RankedUp()),
	)
	return award, nil
}
