package models

import "gorm.io/gorm"

// Company is a tenant. Every profile except sales staff belongs to one.
type Company struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	Name          string `gorm:"not null" json:"name"`
	Slug          string `gorm:"uniqueIndex;not null" json:"slug"`
	EmployeeCount int    `gorm:"not null;default:0" json:"employee_count"`

	Timestamps
}

func (c *Company) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
