package services

import (
	"context"

	"gorm.io/gorm"

	"ecodigital/apperr"
	"ecodigital/models"
	"ecodigital/ranks"
)

const DefaultRankingLimit = 10

type RankingEntry struct {
	Position  int          `json:"position"`
	ProfileID string       `json:"profile_id"`
	FullName  string       `json:"full_name"`
	AvatarURL *string      `json:"avatar_url"`
	XPPoints  int64        `json:"xp_points"`
	Patent    ranks.Patent `json:"patent"`
}

// Position is a profile's place among its company's employees.
type Position struct {
	Rank  int64 `json:"rank"`
	Total int64 `json:"total"`
}

type RankingService struct {
	DB    *gorm.DB
	Ranks *ranks.Table
}

func NewRankingService(db *gorm.DB, table *ranks.Table) *RankingService {
	if table == nil {
		table = ranks.Default
	}
	return &RankingService{DB: db, Ranks: table}
}

// Top lists the company's employees by XP, highest first.
func (s *RankingService) Top(ctx context.Context, companyID string, limit int) ([]RankingEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultRankingLimit
	}
	var profiles []models.Profile
	err := s.DB.WithContext(ctx).
		Where("company_id = ? AND role = ?", companyID, models.RoleEmployee).
		Order("xp_points DESC").Order("full_name ASC").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, wrapDB("ranking", err)
	}

	out := make([]RankingEntry, len(profiles))
	for i, p := range profiles {
		out[i] = RankingEntry{
			Position:  i + 1,
			ProfileID: p.ID,
			FullName:  p.FullName,
			AvatarURL: p.AvatarURL,
			XPPoints:  p.XPPoints,
			Patent:    s.Ranks.For(p.XPPoints),
		}
	}
	return out, nil
}

// PositionOf ranks an employee: one more than the number of colleagues with
// strictly more XP, so ties share a position.
func (s *RankingService) PositionOf(ctx context.Context, p *models.Profile) (*Position, error) {
	if p.Role != models.RoleEmployee || p.CompanyID == nil {
		return nil, apperr.NotFound("Posição no ranking disponível apenas para colaboradores.")
	}
	db := s.DB.WithContext(ctx).Model(&models.Profile{}).
		Where("company_id = ? AND role = ?", *p.CompanyID, models.RoleEmployee)

	var above, total int64
	if err := db.Session(&gorm.Session{}).Where("xp_points > ?", p.XPPoints).Count(&above).Error; err != nil {
		return nil, wrapDB("rank position", err)
	}
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, wrapDB("rank total", err)
	}
	return &Position{Rank: above + 1, Total: total}, nil
}
