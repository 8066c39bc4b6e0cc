package model

import "time"

type BackupStatus string

const (
	BackupStatusUploading BackupStatus = "uploading"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// Backup records one encrypted database snapshot pushed to object storage.
type Backup struct {
	ID           string       `json:"id"`
	ObjectKey    string       `json:"object_key"`
	SizeBytes    int64        `json:"size_bytes"`
	Status       BackupStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}
