// Package testdb opens a migrated in-memory database for package tests and
// seeds common fixtures.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ecodigital/models"
)

// Open returns a fresh database private to t. It is closed when t ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()[:8]
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// One connection keeps every statement on the same in-memory database and
	// avoids shared-cache table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Company(t testing.TB, db *gorm.DB, name string) *models.Company {
	t.Helper()
	c := &models.Company{Name: name, Slug: strings.ToLower(strings.ReplaceAll(name, " ", "-")) + "-" + uuid.NewString()[:6], EmployeeCount: 10}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return c
}

// Profile seeds a profile; companyID may be empty for sales staff.
func Profile(t testing.TB, db *gorm.DB, name, role, companyID string, xp int64) *models.Profile {
	t.Helper()
	p := &models.Profile{ID: uuid.NewString(), FullName: name, Role: role, XPPoints: xp}
	if companyID != "" {
		cid := companyID
		p.CompanyID = &cid
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

func Mission(t testing.TB, db *gorm.DB, title string, xp int64, steps ...string) *models.Mission {
	t.Helper()
	m := &models.Mission{Title: title, Description: title, XPReward: xp}
	for i, s := range steps {
		m.Steps = append(m.Steps, models.MissionStep{Text: s, Order: i + 1})
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed mission: %v", err)
	}
	return m
}

func UserMission(t testing.TB, db *gorm.DB, profileID, missionID, status string) *models.UserMission {
	t.Helper()
	um := &models.UserMission{ProfileID: profileID, MissionID: missionID, Status: status}
	if err := db.Create(um).Error; err != nil {
		t.Fatalf("seed user mission: %v", err)
	}
	return um
}
