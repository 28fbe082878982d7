package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ecodigital/activity"
)

// ActivityFeedEntry is an append-only event row. Metadata holds
// {mission_title, xp_awarded, new_rank_name} depending on the type.
type ActivityFeedEntry struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	ProfileID    *string        `gorm:"type:uuid;index" json:"profile_id"`
	CompanyID    *string        `gorm:"type:uuid;index" json:"company_id"`
	ActivityType string         `gorm:"type:varchar(32);not null;index" json:"activity_type"`
	Message      *string        `json:"message,omitempty"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`

	Profile *Profile `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (ActivityFeedEntry) TableName() string { return "activity_feed" }

func (e *ActivityFeedEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	if len(e.Metadata) == 0 {
		e.Metadata = datatypes.JSON("{}")
	}
	return nil
}

// Meta decodes Metadata; malformed payloads decode as empty.
func (e *ActivityFeedEntry) Meta() activity.Metadata {
	var m activity.Metadata
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &m)
	}
	return m
}

// NewMissionCompletedEntry builds the row appended when a mission is finished.
func NewMissionCompletedEntry(profileID string, companyID *string, title string, xp int64) ActivityFeedEntry {
	return newEntry(profileID, companyID, activity.TypeMissionCompleted, activity.Metadata{MissionTitle: title, XPAwarded: &xp})
}

// NewRankUpEntry builds the row appended when a profile reaches a new patent.
func NewRankUpEntry(profileID string, companyID *string, rank string) ActivityFeedEntry {
	return newEntry(profileID, companyID, activity.TypeRankUp, activity.Metadata{NewRankName: rank})
}

func newEntry(profileID string, companyID *string, kind string, meta activity.Metadata) ActivityFeedEntry {
	raw, _ := json.Marshal(meta)
	pid := profileID
	return ActivityFeedEntry{
		ProfileID:    &pid,
		CompanyID:    companyID,
		ActivityType: kind,
		Metadata:     datatypes.JSON(raw),
	}
}
