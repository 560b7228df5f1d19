package domain

import "time"

// AdminUser is an operator who can sign in to the dashboard.
type AdminUser struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

const AdminRoleSuperAdmin = "superadmin"

// Stats are the dashboard aggregates. Volumes are in kobo.
type Stats struct {
	Users        int64 `json:"users"`
	Transactions int64 `json:"transactions"`
	TotalVolume  int64 `json:"totalVolume"`
	TodayVolume  int64 `json:"todayVolume"`
}
