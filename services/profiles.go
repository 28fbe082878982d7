package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/apperr"
	"ecodigital/baas"
	"ecodigital/models"
	"ecodigital/ranks"
	"ecodigital/saga"
	"ecodigital/utils"
)

type ProfileService struct {
	DB      *gorm.DB
	Ranks   *ranks.Table
	Ranking *RankingService
	Avatars baas.Storage
	Now     func() time.Time
	log     *zap.Logger
}

func NewProfileService(db *gorm.DB, table *ranks.Table, ranking *RankingService, avatars baas.Storage, log *zap.Logger) *ProfileService {
	if table == nil {
		table = ranks.Default
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{DB: db, Ranks: table, Ranking: ranking, Avatars: avatars, Now: time.Now, log: log.With(zap.String("component", "profiles"))}
}

func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, wrapDB("get profile", notFound(err, apperr.ErrProfileMissing))
	}
	return &p, nil
}

// Summary is the profile header: patent, next patent and leaderboard place.
type Summary struct {
	Profile    *models.Profile `json:"profile"`
	Patent     ranks.Patent    `json:"patent"`
	NextPatent *ranks.Patent   `json:"next_patent"`
	Progress   float64         `json:"progress"`
	Position   *Position       `json:"position,omitempty"`
	Initials   string          `json:"initials"`
}

func (s *ProfileService) Summary(ctx context.Context, p *models.Profile) (*Summary, error) {
	patent := s.Ranks.For(p.XPPoints)
	out := &Summary{
		Profile:  p,
		Patent:   patent,
		Progress: s.Ranks.Progress(p.XPPoints),
		Initials: utils.Initials(p.FullName, ""),
	}
	if next, ok := s.Ranks.Next(patent); ok {
		out.NextPatent = &next
	}
	if s.Ranking != nil && p.Role == models.RoleEmployee && p.CompanyID != nil {
		pos, err := s.Ranking.PositionOf(ctx, p)
		if err != nil {
			return nil, err
		}
		out.Position = pos
	}
	return out, nil
}

type UpdateProfileInput struct {
	FullName    string  `json:"full_name" validate:"required,min=3"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

// Update edits the caller's own name and description.
func (s *ProfileService) Update(ctx context.Context, id string, in UpdateProfileInput) (*models.Profile, error) {
	in.FullName = utils.NormalizeName(in.FullName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, err.Error(), err)
	}

	updates := map[string]any{"full_name": in.FullName}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	res := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, wrapDB("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrProfileMissing
	}
	return s.Get(ctx, id)
}

// AvatarKey is {user}/{unixms}.{ext}.
func AvatarKey(profileID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%d.%s", profileID, at.UnixMilli(), ext)
}

// SetAvatar uploads img and points the profile at its public URL. The object
// is removed again if the profile update fails.
func (s *ProfileService) SetAvatar(ctx context.Context, id string, img *utils.Upload) (*models.Profile, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, apperr.Invalid("Selecione uma imagem para fazer upload.")
	}
	key := AvatarKey(id, s.Now(), img.Ext)
	url := s.Avatars.PublicURL(key)

	err := saga.New("set_avatar", s.log).
		Add("upload avatar",
			func(ctx context.Context) error {
				if err := s.Avatars.Upload(ctx, key, img.Reader(), img.ContentType); err != nil {
					return apperr.Upload("Não foi possível atualizar a foto de perfil.", err)
				}
				return nil
			},
			func(ctx context.Context) error { return s.Avatars.Delete(ctx, key) },
		).
		Add("update profile",
			func(ctx context.Context) error {
				res := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Update("avatar_url", url)
				if res.Error != nil {
					return wrapDB("set avatar", res.Error)
				}
				if res.RowsAffected == 0 {
					return apperr.ErrProfileMissing
				}
				return nil
			},
			nil,
		).
		Run(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
