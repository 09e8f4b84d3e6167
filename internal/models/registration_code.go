package models

import "time"

// RegistrationCode is a single-use credential gating public self-registration
type RegistrationCode struct {
	Code      string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Active    bool
	UsedBy    *int64
	UsedAt    *time.Time
}

func (c *RegistrationCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c *RegistrationCode) IsUsed() bool {
	return c.UsedBy != nil
}

// IsValid reports whether the code can still gate a registration
func (c *RegistrationCode) IsValid(now time.Time) bool {
	return c.Active && !c.IsUsed() && !c.IsExpired(now)
}

// StatusLabel is the admin-facing state of the code
func (c *RegistrationCode) StatusLabel(now time.Time) string {
	switch {
	case c.IsUsed():
		return "used"
	case !c.Active:
		return "inactive"
	case c.IsExpired(now):
		return "expired"
	default:
		return "active"
	}
}
