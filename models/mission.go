package models

import "gorm.io/gorm"

type Mission struct {
	ID          string        `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string        `gorm:"not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	XPReward    int64         `gorm:"not null;default:0" json:"xp_reward"`
	Steps       []MissionStep `gorm:"foreignKey:MissionID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`

	Timestamps
}

func (m *Mission) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// MissionStep is one checklist item; Order is stored as step_order.
type MissionStep struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	MissionID string `gorm:"type:uuid;not null;index" json:"mission_id"`
	Text      string `gorm:"column:step_text;not null" json:"text"`
	Order     int    `gorm:"column:step_order;not null;default:0" json:"order"`
}

func (s *MissionStep) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
