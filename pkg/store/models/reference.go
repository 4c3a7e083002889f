package models

import (
	"encoding/json"
	"slices"
	"time"
)

// FileReference records a file held by a storage on behalf of a tenant.
type FileReference struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Tenant   string `gorm:"not null;size:255;uniqueIndex:idx_ref_tenant_checksum_storage" json:"tenant"`
	Checksum string `gorm:"not null;size:255;uniqueIndex:idx_ref_tenant_checksum_storage" json:"checksum"`
	Storage  string `gorm:"not null;size:255;uniqueIndex:idx_ref_tenant_checksum_storage" json:"storage"`
	URL      string `gorm:"type:text" json:"url"`
	Owners   string `gorm:"type:text" json:"-"` // JSON array of owner ids
	FileName string `gorm:"size:1024" json:"file_name,omitempty"`
	FileSize int64  `json:"file_size"`
	MimeType string `gorm:"size:255" json:"mime_type,omitempty"`
	Type     string `gorm:"size:255" json:"type,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ParsedOwners []string `gorm:"-" json:"owners,omitempty"`
}

// TableName returns the table name for FileReference.
func (FileReference) TableName() string {
	return "file_references"
}

// GetOwners returns the decoded owner list.
func (r *FileReference) GetOwners() ([]string, error) {
	if r.ParsedOwners != nil {
		return r.ParsedOwners, nil
	}
	if r.Owners == "" {
		return []string{}, nil
	}
	var owners []string
	if err := json.Unmarshal([]byte(r.Owners), &owners); err != nil {
		return nil, err
	}
	r.ParsedOwners = owners
	return owners, nil
}

// SetOwners stores the owner list, sorted and deduplicated.
func (r *FileReference) SetOwners(owners []string) error {
	owners = slices.Clone(owners)
	slices.Sort(owners)
	owners = slices.Compact(owners)

	data, err := json.Marshal(owners)
	if err != nil {
		return err
	}
	r.Owners = string(data)
	r.ParsedOwners = owners
	return nil
}

// AddOwner adds owner and reports whether the list changed.
func (r *FileReference) AddOwner(owner string) (bool, error) {
	if owner == "" {
		return false, nil
	}
	owners, err := r.GetOwners()
	if err != nil {
		return false, err
	}
	if slices.Contains(owners, owner) {
		return false, nil
	}
	return true, r.SetOwners(append(slices.Clone(owners), owner))
}

// RemoveOwner removes owner and returns the remaining owners.
func (r *FileReference) RemoveOwner(owner string) ([]string, error) {
	owners, err := r.GetOwners()
	if err != nil {
		return nil, err
	}
	remaining := slices.DeleteFunc(slices.Clone(owners), func(o string) bool { return o == owner })
	if err := r.SetOwners(remaining); err != nil {
		return nil, err
	}
	return r.ParsedOwners, nil
}
