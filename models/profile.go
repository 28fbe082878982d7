package models

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
	RoleSales    = "sales"
)

// Profile is the app-side record of an auth identity; ID is the GoTrue user id.
type Profile struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	FullName    string  `gorm:"not null;default:''" json:"full_name"`
	AvatarURL   *string `json:"avatar_url"`
	Description string  `gorm:"type:varchar(200);not null;default:''" json:"description"`

	// Progression
	XPPoints int64 `gorm:"column:xp_points;not null;default:0;index" json:"xp_points"`

	Role                   string  `gorm:"type:varchar(16);not null;default:'employee';index" json:"role"`
	CompanyID              *string `gorm:"type:uuid;index" json:"company_id"`
	RequiresPasswordChange bool    `gorm:"not null;default:false" json:"requires_password_change"`

	Company *Company `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	Timestamps
}

// InCompany reports whether p belongs to companyID.
func (p *Profile) InCompany(companyID string) bool {
	return p.CompanyID != nil && *p.CompanyID == companyID
}

func ValidRole(role string) bool {
	switch role {
	case RoleEmployee, RoleAdmin, RoleSales:
		return true
	}
	return false
}
