package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ecodigital/activity"
	"ecodigital/models"
	"ecodigital/ranks"
)

const (
	ActiveWindow  = 5 * time.Minute
	WeeklyBuckets = 8
)

type KPIs struct {
	Collaborators     int64 `json:"collaborators"`
	MissionsCompleted int64 `json:"missions_completed"`
	ActiveChallenges  int64 `json:"active_challenges"`
	ActiveNow         int64 `json:"active_now"`
	TotalXP           int64 `json:"total_xp"`
}

type EngagementRow struct {
	ProfileID  string       `json:"profile_id"`
	FullName   string       `json:"full_name"`
	AvatarURL  *string      `json:"avatar_url"`
	XPPoints   int64        `json:"xp_points"`
	Patent     ranks.Patent `json:"patent"`
	Completed  int64        `json:"completed"`
	InProgress int64        `json:"in_progress"`
}

type WeeklyPoint struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
}

// EngagementService computes the admin dashboard figures for one company.
type EngagementService struct {
	DB    *gorm.DB
	Ranks *ranks.Table
	Now   func() time.Time
}

func NewEngagementService(db *gorm.DB, table *ranks.Table) *EngagementService {
	if table == nil {
		table = ranks.Default
	}
	return &EngagementService{DB: db, Ranks: table, Now: time.Now}
}

func (s *EngagementService) companyMissions(db *gorm.DB, companyID, status string) *gorm.DB {
	return db.Model(&models.UserMission{}).
		Joins("JOIN profiles ON profiles.id = user_missions.profile_id").
		Where("profiles.company_id = ? AND user_missions.status = ?", companyID, status)
}

func (s *EngagementService) KPIs(ctx context.Context, companyID string) (*KPIs, error) {
	db := s.DB.WithContext(ctx)
	var k KPIs

	if err := db.Model(&models.Profile{}).Where("company_id = ?", companyID).Count(&k.Collaborators).Error; err != nil {
		return nil, wrapDB("kpi collaborators", err)
	}
	if err := s.companyMissions(db, companyID, models.MissionCompleted).Count(&k.MissionsCompleted).Error; err != nil {
		return nil, wrapDB("kpi completed", err)
	}
	if err := s.companyMissions(db, companyID, models.MissionInProgress).Count(&k.ActiveChallenges).Error; err != nil {
		return nil, wrapDB("kpi in progress", err)
	}
	since := s.Now().Add(-ActiveWindow)
	if err := db.Model(&models.ActivityFeedEntry{}).
		Where("company_id = ? AND created_at >= ? AND profile_id IS NOT NULL", companyID, since).
		Distinct("profile_id").Count(&k.ActiveNow).Error; err != nil {
		return nil, wrapDB("kpi active", err)
	}
	if err := db.Model(&models.Profile{}).Where("company_id = ?", companyID).
		Select("COALESCE(SUM(xp_points), 0)").Scan(&k.TotalXP).Error; err != nil {
		return nil, wrapDB("kpi xp", err)
	}
	return &k, nil
}

// Ranking lists the company's employees by XP with their mission counts.
func (s *EngagementService) Ranking(ctx context.Context, companyID string) ([]EngagementRow, error) {
	db := s.DB.WithContext(ctx)
	var profiles []models.Profile
	err := db.Where("company_id = ? AND role = ?", companyID, models.RoleEmployee).
		Order("xp_points DESC").Order("full_name ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, wrapDB("engagement ranking", err)
	}
	if len(profiles) == 0 {
		return []EngagementRow{}, nil
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	var counts []struct {
		ProfileID string
		Status    string
		N         int64
	}
	err = db.Model(&models.UserMission{}).
		Select("profile_id, status, COUNT(*) AS n").
		Where("profile_id IN ?", ids).
		Group("profile_id, status").
		Scan(&counts).Error
	if err != nil {
		return nil, wrapDB("engagement counts", err)
	}
	type pair struct{ completed, inProgress int64 }
	byProfile := map[string]*pair{}
	for _, c := range counts {
		p := byProfile[c.ProfileID]
		if p == nil {
			p = &pair{}
			byProfile[c.ProfileID] = p
		}
		switch c.Status {
		case models.MissionCompleted:
			p.completed += c.N
		case models.MissionInProgress:
			p.inProgress += c.N
		}
	}

	out := make([]EngagementRow, len(profiles))
	for i, p := range profiles {
		row := EngagementRow{
			ProfileID: p.ID,
			FullName:  p.FullName,
			AvatarURL: p.AvatarURL,
			XPPoints:  p.XPPoints,
			Patent:    s.Ranks.For(p.XPPoints),
		}
		if c := byProfile[p.ID]; c != nil {
			row.Completed, row.InProgress = c.completed, c.inProgress
		}
		out[i] = row
	}
	return out, nil
}

// Weekly counts completed missions in eight consecutive seven-day buckets.
// The last bucket ends at the end of today.
func (s *EngagementService) Weekly(ctx context.Context, companyID string) ([]WeeklyPoint, error) {
	now := s.Now()
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	const week = 7 * 24 * time.Hour

	points := make([]WeeklyPoint, WeeklyBuckets)
	for i := range points {
		points[i] = WeeklyPoint{
			Label: fmt.Sprintf("Semana %d", i+1),
			Start: end.Add(-time.Duration(WeeklyBuckets-i) * week),
			End:   end.Add(-time.Duration(WeeklyBuckets-1-i) * week),
		}
	}

	var stamps []time.Time
	err := s.DB.WithContext(ctx).Model(&models.ActivityFeedEntry{}).
		Where("company_id = ? AND activity_type = ? AND created_at >= ? AND created_at < ?",
			companyID, activity.TypeMissionCompleted, points[0].Start, end).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, wrapDB("weekly engagement", err)
	}
	for _, ts := range stamps {
		i := int(ts.Sub(points[0].Start) / week)
		if i >= 0 && i < WeeklyBuckets {
			points[i].Count++
		}
	}
	return points, nil
}
