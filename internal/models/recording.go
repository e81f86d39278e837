package models

import "time"

// ExternalRecordingStatus mirrors the room provider's recording
// lifecycle values as returned by its listing API.
type ExternalRecordingStatus string

const (
	ExternalRecordingInProgress ExternalRecordingStatus = "in-progress"
	ExternalRecordingFinished   ExternalRecordingStatus = "finished"
	ExternalRecordingFailed     ExternalRecordingStatus = "failed"
)

// ExternalRecording is a read-only view of a recording stored by the
// room provider. The provider owns these rows; we only match them to
// local sessions.
type ExternalRecording struct {
	ID          string                  `json:"id"`
	RoomName    string                  `json:"room_name"`
	Status      ExternalRecordingStatus `json:"status"`
	StartedAt   time.Time               `json:"started_at"`
	DownloadURL string                  `json:"download_url,omitempty"`
}

// ProviderRoom is the remote room record returned at provisioning time.
type ProviderRoom struct {
	RoomID    string    `json:"room_id"`
	RoomName  string    `json:"room_name"`
	CreatedAt time.Time `json:"created_at"`
}
