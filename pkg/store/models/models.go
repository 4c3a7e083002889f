// Package models defines the persisted records of request groups, file
// references and failed requests.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&RequestGroup{},
		&FileReference{},
		&FailedRequest{},
	}
}
