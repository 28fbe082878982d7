// Package activity turns raw activity_feed rows into the text the clients show.
package activity

import (
	"fmt"
	"strings"
	"time"

	"ecodigital/ranks"
)

const (
	TypeMissionCompleted = "mission_completed"
	TypeRankUp           = "rank_up"
)

const (
	unknownMission = "desconhecida"
	genericMessage = "registrou uma nova atividade."
	trophy         = "🏆"
)

// Metadata is the decoded jsonb payload of a feed row.
type Metadata struct {
	MissionTitle string `json:"mission_title,omitempty"`
	XPAwarded    *int64 `json:"xp_awarded,omitempty"`
	NewRankName  string `json:"new_rank_name,omitempty"`
}

// Actor is the subset of a profile needed to render an entry.
type Actor struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Entry is a feed row with its actor; Actor is nil when the profile is gone.
type Entry struct {
	ID           string
	ActivityType string
	Message      string
	Metadata     Metadata
	CreatedAt    time.Time
	Actor        *Actor
}

// Item is a rendered entry as served to clients.
type Item struct {
	ID           string    `json:"id"`
	ActivityType string    `json:"activity_type"`
	Actor        Actor     `json:"actor"`
	Text         string    `json:"text"`
	Trophy       bool      `json:"trophy"`
	TopTier      bool      `json:"top_tier"`
	CreatedAt    time.Time `json:"created_at"`
	When         string    `json:"when"`
}

// Renderer formats entries against a patent table.
type Renderer struct {
	Table *ranks.Table
	Now   func() time.Time
}

func NewRenderer(table *ranks.Table) *Renderer {
	if table == nil {
		table = ranks.Default
	}
	return &Renderer{Table: table, Now: time.Now}
}

// Text returns the copy for e and whether it marks a top-tier rank up.
func (r *Renderer) Text(e Entry) (string, bool) {
	switch e.ActivityType {
	case TypeMissionCompleted:
		title := strings.TrimSpace(e.Metadata.MissionTitle)
		if title == "" {
			title = unknownMission
		}
		var xp int64
		if e.Metadata.XPAwarded != nil {
			xp = *e.Metadata.XPAwarded
		}
		return fmt.Sprintf("completou a missão %s e ganhou %d XP!", title, xp), false
	case TypeRankUp:
		rank := e.Metadata.NewRankName
		return fmt.Sprintf("alcançou a patente de %s!", rank), rank != "" && r.Table.IsTop(rank)
	default:
		if msg := strings.TrimSpace(e.Message); msg != "" {
			return msg, false
		}
		return genericMessage, false
	}
}

// Render drops entries without an actor and formats the rest, keeping order.
func (r *Renderer) Render(entries []Entry) []Item {
	now := r.Now()
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.Actor == nil {
			continue
		}
		text, top := r.Text(e)
		if top {
			text += " " + trophy
		}
		items = append(items, Item{
			ID:           e.ID,
			ActivityType: e.ActivityType,
			Actor:        *e.Actor,
			Text:         text,
			Trophy:       top,
			TopTier:      top,
			CreatedAt:    e.CreatedAt,
			When:         RelativeTime(e.CreatedAt, now),
		})
	}
	return items
}
