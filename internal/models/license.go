package models

import (
	"time"
)

// License represents a purchased entitlement with a seat cap and expiry.
// The key is immutable once issued; everything else may be edited by the
// admin surface at any time, so callers must always re-read the row.
type License struct {
	ID       uint      `gorm:"column:id;primaryKey" json:"id"`
	Key      string    `gorm:"column:key;size:100;uniqueIndex;not null" json:"key"`
	Email    string    `gorm:"column:email;size:255;not null" json:"email"`
	Plan     string    `gorm:"column:plan;size:50;not null" json:"plan"`
	Expiry   time.Time `gorm:"column:expiry;type:date;not null" json:"expiry"`
	MaxSeats int       `gorm:"column:max_seats;default:1" json:"max_seats"`
}

func (License) TableName() string {
	return "licenses"
}

// Expired reports whether the license has expired as of now.
// The expiry date is inclusive: the license is valid through the
// end of that calendar day.
func (l *License) Expired(now time.Time) bool {
	ey, em, ed := l.Expiry.Date()
	ny, nm, nd := now.Date()
	expiry := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return expiry.Before(today)
}

// ExpiryDate returns the expiry formatted as YYYY-MM-DD.
func (l *License) ExpiryDate() string {
	return l.Expiry.Format("2006-01-02")
}

// Activation represents one seat of a license claimed by one machine.
// Multiple rows may exist for the same (license_key, machine_id) pair over
// time; at most one of them is live (revoked = false). Revoked is monotonic:
// once set it never reverts, a later re-activation creates a new row.
type Activation struct {
	ID          uint      `gorm:"column:id;primaryKey" json:"id"`
	LicenseKey  string    `gorm:"column:license_key;size:100;not null;index" json:"license_key"`
	MachineID   string    `gorm:"column:machine_id;size:255;not null;index" json:"machine_id"`
	Username    string    `gorm:"column:username;size:255" json:"username,omitempty"`
	ActivatedAt time.Time `gorm:"column:activated_at;not null" json:"activated_at"`
	Revoked     bool      `gorm:"column:revoked;default:false;index" json:"revoked"`
}

func (Activation) TableName() string {
	return "activations"
}

// BannedMachine blocks a machine identifier from all entitlement operations.
// Only the admin surface removes rows; the core never lifts a ban.
type BannedMachine struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	MachineID string    `gorm:"column:machine_id;size:255;uniqueIndex;not null" json:"machine_id"`
	Reason    string    `gorm:"column:reason;size:500" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (BannedMachine) TableName() string {
	return "banned_machines"
}
