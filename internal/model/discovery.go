package model

import "time"

// Status is the lifecycle state of a discovery request.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusAccepted Status = "accepted"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusAccepted, StatusRunning, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

// Terminal reports whether the request has finished, either way.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Discovery represents one simulation-model mining request.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
type Discovery struct {
	ID                string    `json:"id"`
	Status            Status    `json:"status"`
	EventLogPath      string    `json:"event_log_path"`
	ConfigurationPath string    `json:"configuration_path,omitempty"`
	CallbackURL       string    `json:"callback_url,omitempty"`
	ArchivePath       string    `json:"archive_path,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
