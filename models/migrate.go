package models

import (
	"fmt"

	"gorm.io/gorm"
)

// FeedChannel is the Postgres NOTIFY channel fired on activity_feed inserts.
// The payload is the company id (empty when the row has none).
const FeedChannel = "activity_feed_inserted"

// All lists every table in dependency order.
func All() []any {
	return []any{
		&Company{},
		&Profile{},
		&Mission{},
		&MissionStep{},
		&UserMission{},
		&ActivityFeedEntry{},
	}
}

const feedTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_activity_feed_inserted() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + FeedChannel + `', COALESCE(NEW.company_id::text, ''));
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS activity_feed_inserted ON activity_feed;
CREATE TRIGGER activity_feed_inserted
	AFTER INSERT ON activity_feed
	FOR EACH ROW EXECUTE FUNCTION notify_activity_feed_inserted();
`

// Migrate creates or updates all tables. On Postgres it also installs the
// feed notification trigger.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(feedTriggerSQL).Error; err != nil {
			return fmt.Errorf("install feed trigger: %w", err)
		}
	}
	return nil
}
