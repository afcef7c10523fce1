package domain

import "time"

// UserProfile is the authenticated user's identity as returned by the
// auth endpoints. Replaced wholesale on login and refresh, never
// mutated field by field.
type UserProfile struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	JoinedAt    time.Time `json:"date_joined"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
}

// Elevated reports whether the user may call staff-only endpoints.
func (u *UserProfile) Elevated() bool {
	return u != nil && (u.IsStaff || u.IsSuperuser)
}
