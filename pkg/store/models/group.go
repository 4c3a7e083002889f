package models

import "time"

// GroupStatus is the lifecycle state of a request group.
type GroupStatus string

const (
	StatusPending   GroupStatus = "pending"
	StatusDone      GroupStatus = "done"
	StatusError     GroupStatus = "error"
	StatusCancelled GroupStatus = "cancelled"
	StatusDenied    GroupStatus = "denied"
	StatusExpired   GroupStatus = "expired"
)

// ParseGroupStatus returns the status and whether the name is known.
func ParseGroupStatus(s string) (GroupStatus, bool) {
	switch st := GroupStatus(s); st {
	case StatusPending, StatusDone, StatusError, StatusCancelled, StatusDenied, StatusExpired:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition happens except a retry.
func (s GroupStatus) Terminal() bool {
	return s != StatusPending
}

// RequestGroup tracks the admission attempts and file results of one
// client-defined group of requests.
type RequestGroup struct {
	Tenant       string      `gorm:"primaryKey;size:255" json:"tenant"`
	GroupID      string      `gorm:"primaryKey;size:255" json:"group_id"`
	Kind         string      `gorm:"not null;size:32" json:"kind"`
	Granted      int         `gorm:"not null;default:0" json:"granted"`
	Denied       int         `gorm:"not null;default:0" json:"denied"`
	DeniedReason string      `gorm:"size:1024" json:"denied_reason,omitempty"`
	GrantedItems int         `gorm:"not null;default:0" json:"granted_items"`
	Succeeded    int         `gorm:"not null;default:0" json:"succeeded"`
	Failed       int         `gorm:"not null;default:0" json:"failed"`
	Cancelled    bool        `gorm:"not null;default:false" json:"cancelled"`
	Status       GroupStatus `gorm:"not null;size:16;default:pending;index:idx_groups_status" json:"status"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for RequestGroup.
func (RequestGroup) TableName() string {
	return "request_groups"
}

// Attempts is the number of admission decisions recorded for the group.
func (g *RequestGroup) Attempts() int {
	return g.Granted + g.Denied
}

// Complete reports whether every admitted file has reported a result.
func (g *RequestGroup) Complete() bool {
	return g.GrantedItems > 0 && g.Succeeded+g.Failed >= g.GrantedItems
}

// Settle computes the status the group should move to at now, or "" when
// it stays as it is. Completion wins over staleness.
func (g *RequestGroup) Settle(now time.Time, expiration time.Duration) GroupStatus {
	if g.Status != StatusPending {
		return ""
	}
	if g.Complete() {
		if g.Failed > 0 {
			return StatusError
		}
		return StatusDone
	}
	if g.ExpiresAt != nil && now.After(*g.ExpiresAt) {
		return StatusExpired
	}
	if expiration > 0 && now.Sub(g.CreatedAt) > expiration {
		return StatusExpired
	}
	return ""
}
