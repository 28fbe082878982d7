package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	MissionPending    = "pending"
	MissionInProgress = "in_progress"
	MissionCompleted  = "completed"
)

// UserMission joins a profile to a mission it has started.
type UserMission struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	ProfileID    string     `gorm:"type:uuid;not null;uniqueIndex:idx_user_mission" json:"profile_id"`
	MissionID    string     `gorm:"type:uuid;not null;uniqueIndex:idx_user_mission;index" json:"mission_id"`
	Status       string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	EvidencePath *string    `json:"evidence_path,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	Profile *Profile `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Mission *Mission `gorm:"constraint:OnDelete:CASCADE" json:"mission,omitempty"`

	Timestamps
}

func (um *UserMission) BeforeCreate(*gorm.DB) error {
	ensureID(&um.ID)
	if um.Status == "" {
		um.Status = MissionPending
	}
	return nil
}
