package models

import "errors"

var (
	ErrGroupNotFound     = errors.New("request group not found")
	ErrReferenceNotFound = errors.New("file reference not found")
	ErrFailureNotFound   = errors.New("failed request not found")
)
