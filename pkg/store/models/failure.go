package models

import (
	"encoding/json"
	"time"
)

// FailedRequest is one file request that failed and can be replayed.
type FailedRequest struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Tenant   string `gorm:"not null;size:255;index:idx_failed_group" json:"tenant"`
	GroupID  string `gorm:"size:255;index:idx_failed_group" json:"group_id"`
	Kind     string `gorm:"not null;size:32" json:"kind"`
	Owner    string `gorm:"size:255;index" json:"owner,omitempty"`
	Checksum string `gorm:"size:255" json:"checksum"`
	Storage  string `gorm:"size:255" json:"storage,omitempty"`
	Payload  string `gorm:"type:text" json:"-"` // JSON of the original file request
	Error    string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for FailedRequest.
func (FailedRequest) TableName() string {
	return "failed_requests"
}

// DecodePayload unmarshals the stored request into target.
func (f *FailedRequest) DecodePayload(target any) error {
	return json.Unmarshal([]byte(f.Payload), target)
}

// SetPayload stores source as the replayable request.
func (f *FailedRequest) SetPayload(source any) error {
	data, err := json.Marshal(source)
	if err != nil {
		return err
	}
	f.Payload = string(data)
	return nil
}

// FailureFilter selects failed requests. GroupID and Owners are alternatives;
// when both are set a row matching either is selected.
type FailureFilter struct {
	Tenant  string
	Kind    string
	GroupID string
	Owners  []string
}
