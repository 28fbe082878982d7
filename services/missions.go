package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/apperr"
	"ecodigital/baas"
	"ecodigital/metrics"
	"ecodigital/models"
	"ecodigital/saga"
	"ecodigital/utils"
)

// Mission list filters, matching the mobile tabs.
const (
	FilterNew        = "new"
	FilterInProgress = "in_progress"
	FilterCompleted  = "completed"
)

type StepView struct {
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// MissionView is a mission as seen by one profile.
type MissionView struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	XPReward     int64      `json:"xp_reward"`
	Status       string     `json:"status"`
	Steps        []StepView `json:"steps,omitempty"`
	EvidencePath *string    `json:"evidence_path,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type MissionService struct {
	DB          *gorm.DB
	Evidence    baas.Storage
	Progression *ProgressionService
	Now         func() time.Time
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func NewMissionService(db *gorm.DB, evidence baas.Storage, progression *ProgressionService, log *zap.Logger, m *metrics.Metrics) *MissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MissionService{
		DB:          db,
		Evidence:    evidence,
		Progression: progression,
		Now:         time.Now,
		log:         log.With(zap.String("component", "missions")),
		metrics:     m,
	}
}

func view(m *models.Mission, um *models.UserMission) MissionView {
	v := MissionView{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		XPReward:    m.XPReward,
		Status:      models.MissionPending,
	}
	if um != nil {
		v.Status = um.Status
		v.EvidencePath = um.EvidencePath
		v.CompletedAt = um.CompletedAt
	}
	for _, st := range m.Steps {
		v.Steps = append(v.Steps, StepView{Text: st.Text, Order: st.Order})
	}
	return v
}

// List returns the missions in one tab. "new" holds missions the profile has
// not started; an empty filter returns everything.
func (s *MissionService) List(ctx context.Context, profileID, filter string) ([]MissionView, error) {
	switch filter {
	case "", FilterNew, FilterInProgress, FilterCompleted:
	default:
		return nil, apperr.Invalid(fmt.Sprintf("Filtro de missões inválido: %q.", filter))
	}

	db := s.DB.WithContext(ctx)
	var missions []models.Mission
	if err := db.Order("created_at ASC").Order("title ASC").Find(&missions).Error; err != nil {
		return nil, wrapDB("list missions", err)
	}
	var joined []models.UserMission
	if err := db.Where("profile_id = ?", profileID).Find(&joined).Error; err != nil {
		return nil, wrapDB("list user missions", err)
	}
	byMission := make(map[string]*models.UserMission, len(joined))
	for i := range joined {
		byMission[joined[i].MissionID] = &joined[i]
	}

	out := make([]MissionView, 0, len(missions))
	for i := range missions {
		v := view(&missions[i], byMission[missions[i].ID])
		switch {
		case filter == "":
		case filter == FilterNew && v.Status != models.MissionPending:
			continue
		case filter != FilterNew && v.Status != filter:
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one mission with its steps in order.
func (s *MissionService) Get(ctx context.Context, profileID, missionID string) (*MissionView, error) {
	db := s.DB.WithContext(ctx)
	var m models.Mission
	err := db.Preload("Steps", func(tx *gorm.DB) *gorm.DB { return tx.Order("step_order ASC") }).
		Where("id = ?", missionID).First(&m).Error
	if err != nil {
		return nil, wrapDB("get mission", notFound(err, apperr.ErrMissionNotFound))
	}

	var um models.UserMission
	err = db.Where("profile_id = ? AND mission_id = ?", profileID, missionID).First(&um).Error
	switch {
	case err == nil:
		v := view(&m, &um)
		return &v, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		v := view(&m, nil)
		return &v, nil
	default:
		return nil, wrapDB("get user mission", err)
	}
}

// Start moves a mission to in_progress for the profile. Starting a mission
// that is already in progress returns the existing row with started=false.
func (s *MissionService) Start(ctx context.Context, profileID, missionID string) (um *models.UserMission, started bool, err error) {
	db := s.DB.WithContext(ctx)
	var m models.Mission
	if err := db.Select("id").Where("id = ?", missionID).First(&m).Error; err != nil {
		return nil, false, wrapDB("start mission", notFound(err, apperr.ErrMissionNotFound))
	}

	um, started, err = s.start(db, profileID, missionID)
	if isUniqueViolation(err) {
		// A concurrent start won the insert; report its row.
		um, started, err = s.start(db, profileID, missionID)
	}
	if err != nil {
		return nil, false, wrapDB("start mission", err)
	}
	if started {
		s.metrics.MissionStarted()
		s.log.Info("mission started", zap.String("profile_id", profileID), zap.String("mission_id", missionID))
	}
	return um, started, nil
}

func (s *MissionService) start(db *gorm.DB, profileID, missionID string) (*models.UserMission, bool, error) {
	var um models.UserMission
	err := db.Where("profile_id = ? AND mission_id = ?", profileID, missionID).First(&um).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		um = models.UserMission{ProfileID: profileID, MissionID: missionID, Status: models.MissionInProgress}
		if err := db.Create(&um).Error; err != nil {
			return nil, false, err
		}
		return &um, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	switch um.Status {
	case models.MissionInProgress:
		return &um, false, nil
	case models.MissionCompleted:
		return nil, false, apperr.ErrAlreadyDone
	}
	if err := db.Model(&um).Update("status", models.MissionInProgress).Error; err != nil {
		return nil, false, err
	}
	um.Status = models.MissionInProgress
	return &um, true, nil
}

// EvidenceKey is where a completion proof is stored: {user}/{mission}/{unixms}.{ext}.
func EvidenceKey(profileID, missionID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%d.%s", profileID, missionID, at.UnixMilli(), ext)
}

// Complete uploads the evidence and then runs the reward procedure. If the
// reward fails the uploaded object is deleted again.
func (s *MissionService) Complete(ctx context.Context, profileID, missionID string, evidence *utils.Upload) (*Award, error) {
	if evidence == nil || len(evidence.Data) == 0 {
		return nil, apperr.Invalid("Por favor, selecione uma imagem como prova antes de finalizar.")
	}

	db := s.DB.WithContext(ctx)
	var um models.UserMission
	err := db.Where("profile_id = ? AND mission_id = ?", profileID, missionID).First(&um).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var count int64
		if err := db.Model(&models.Mission{}).Where("id = ?", missionID).Count(&count).Error; err != nil {
			return nil, wrapDB("complete mission", err)
		}
		if count == 0 {
			return nil, apperr.ErrMissionNotFound
		}
		return nil, apperr.ErrNotInProgress
	}
	if err != nil {
		return nil, wrapDB("complete mission", err)
	}
	switch um.Status {
	case models.MissionCompleted:
		return nil, apperr.ErrAlreadyDone
	case models.MissionInProgress:
	default:
		return nil, apperr.ErrNotInProgress
	}

	key := EvidenceKey(profileID, missionID, s.Now(), evidence.Ext)
	var award *Award

	err = saga.New("complete_mission", s.log).
		Add("upload evidence",
			func(ctx context.Context) error {
				if err := s.Evidence.Upload(ctx, key, evidence.Reader(), evidence.ContentType); err != nil {
					return apperr.Upload("Não foi possível enviar a evidência.", err)
				}
				return nil
			},
			func(ctx context.Context) error { return s.Evidence.Delete(ctx, key) },
		).
		Add("award xp",
			func(ctx context.Context) error {
				var err error
				award, err = s.Progression.CompleteMission(ctx, profileID, missionID, key)
				return err
			},
			nil,
		).
		Run(ctx)
	if err != nil {
		var sagaErr *saga.Error
		if errors.As(err, &sagaErr) && !sagaErr.RolledBack() {
			s.log.Error("evidence left behind after failed completion",
				zap.String("key", key), zap.Errors("rollback", sagaErr.RollbackErrs))
		}
		return nil, err
	}
	return award, nil
}
