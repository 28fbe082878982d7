package services

import (
	"context"

	"gorm.io/gorm"

	"ecodigital/apperr"
	"ecodigital/models"
	"ecodigital/ranks"
	"ecodigital/utils"
)

const CollaboratorPageSize = 10

type Collaborator struct {
	ID        string       `json:"id"`
	FullName  string       `json:"full_name"`
	AvatarURL *string      `json:"avatar_url"`
	Initials  string       `json:"initials"`
	Role      string       `json:"role"`
	XPPoints  int64        `json:"xp_points"`
	Patent    ranks.Patent `json:"patent"`
}

type CollaboratorPage struct {
	Items      []Collaborator `json:"items"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
}

type CollaboratorService struct {
	DB    *gorm.DB
	Ranks *ranks.Table
}

func NewCollaboratorService(db *gorm.DB, table *ranks.Table) *CollaboratorService {
	if table == nil {
		table = ranks.Default
	}
	return &CollaboratorService{DB: db, Ranks: table}
}

// List pages through the admin's colleagues in pt-BR name order. query
// filters by name ignoring case and accents. Pages start at 1; a page past
// the end is clamped to the last one.
func (s *CollaboratorService) List(ctx context.Context, admin *models.Profile, query string, page int) (*CollaboratorPage, error) {
	if admin.CompanyID == nil {
		return nil, apperr.ErrNoCompany
	}
	var profiles []models.Profile
	err := s.DB.WithContext(ctx).
		Where("company_id = ? AND id <> ?", *admin.CompanyID, admin.ID).
		Find(&profiles).Error
	if err != nil {
		return nil, wrapDB("list collaborators", err)
	}

	if !utils.IsBlank(query) {
		kept := profiles[:0]
		for _, p := range profiles {
			if utils.ContainsFold(p.FullName, query) {
				kept = append(kept, p)
			}
		}
		profiles = kept
	}
	utils.SortByName(profiles, func(p models.Profile) string { return p.FullName })

	total := len(profiles)
	pages := (total + CollaboratorPageSize - 1) / CollaboratorPageSize
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * CollaboratorPageSize
	end := min(start+CollaboratorPageSize, total)

	out := &CollaboratorPage{Items: make([]Collaborator, 0, end-start), Page: page, TotalPages: pages, Total: total}
	for _, p := range profiles[start:end] {
		out.Items = append(out.Items, Collaborator{
			ID:        p.ID,
			FullName:  p.FullName,
			AvatarURL: p.AvatarURL,
			Initials:  utils.Initials(p.FullName, ""),
			Role:      p.Role,
			XPPoints:  p.XPPoints,
			Patent:    s.Ranks.For(p.XPPoints),
		})
	}
	return out, nil
}
