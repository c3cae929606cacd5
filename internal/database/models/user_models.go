package models

import "time"

type StaffRole string

const (
	RoleServer  StaffRole = "server"
	RoleManager StaffRole = "manager"
	RoleKitchen StaffRole = "kitchen"
)

// Staff is a terminal user. PIN hashes are bcrypt.
type Staff struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code     string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"code"`
	Name     string    `gorm:"type:varchar(128);not null" json:"name"`
	PinHash  string    `gorm:"type:varchar(128);not null" json:"-"`
	Role     StaffRole `gorm:"type:varchar(16);not null;default:'server'" json:"role"`
	IsActive bool      `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
