package models

import "errors"

// Errors shared by prompt repositories and the lifecycle store.
var (
	ErrPromptNotFound  = errors.New("prompt entry not found")
	ErrVersionConflict = errors.New("prompt entry version conflict")
)
