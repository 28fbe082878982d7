package services

import (
	"context"

	"gorm.io/gorm"

	"ecodigital/activity"
	"ecodigital/models"
	"ecodigital/ranks"
)

const FeedLimit = 20

type FeedService struct {
	DB       *gorm.DB
	Renderer *activity.Renderer
}

func NewFeedService(db *gorm.DB, table *ranks.Table) *FeedService {
	return &FeedService{DB: db, Renderer: activity.NewRenderer(table)}
}

// Latest renders the company's newest entries, newest first. Entries whose
// actor no longer exists are left out.
func (s *FeedService) Latest(ctx context.Context, companyID string) ([]activity.Item, error) {
	var rows []models.ActivityFeedEntry
	err := s.DB.WithContext(ctx).
		Preload("Profile").
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Limit(FeedLimit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapDB("feed", err)
	}
	return s.Renderer.Render(toEntries(rows)), nil
}

func toEntries(rows []models.ActivityFeedEntry) []activity.Entry {
	out := make([]activity.Entry, len(rows))
	for i := range rows {
		r := &rows[i]
		e := activity.Entry{
			ID:           r.ID,
			ActivityType: r.ActivityType,
			Metadata:     r.Meta(),
			CreatedAt:    r.CreatedAt,
		}
		if r.Message != nil {
			e.Message = *r.Message
		}
		if r.Profile != nil {
			e.Actor = &activity.Actor{ID: r.Profile.ID, FullName: r.Profile.FullName}
			if r.Profile.AvatarURL != nil {
				e.Actor.AvatarURL = *r.Profile.AvatarURL
			}
		}
		out[i] = e
	}
	return out
}
