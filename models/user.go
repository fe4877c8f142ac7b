package models

import "time"

const (
	UserRoleAdmin = "admin"
	UserRoleAgent = "agent"
)

// User is the minimal auth collaborator this service needs: a username to
// tenant mapping plus a role for admin bypass. Issuance lives elsewhere.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	TenantId  string    `gorm:"index;size:64" json:"tenant_id"`
	Role      string    `gorm:"size:20" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
