package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	SessionStateScheduled  SessionState = "scheduled"
	SessionStateInProgress SessionState = "in_progress"
	SessionStateCompleted  SessionState = "completed"
	SessionStateCancelled  SessionState = "cancelled"
	SessionStateNoShow     SessionState = "no_show"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateCancelled || s == SessionStateNoShow
}

type RecordingStatus string

const (
	RecordingStatusNone       RecordingStatus = "none"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusReady      RecordingStatus = "ready"
	RecordingStatusFailed     RecordingStatus = "failed"
	RecordingStatusNotFound   RecordingStatus = "not_found"
)

type ConsultingSession struct {
	ID         uuid.UUID `db:"id"`
	BookingRef string    `db:"booking_ref"`

	RoomID    string `db:"room_id"`
	RoomTopic string `db:"room_topic"`

	SellerID  uuid.UUID  `db:"seller_id"`
	BuyerID   uuid.UUID  `db:"buyer_id"`
	ServiceID uuid.UUID  `db:"service_id"`
	CreditID  *uuid.UUID `db:"credit_id"`

	ScheduledStart time.Time `db:"scheduled_start"`
	ScheduledEnd   time.Time `db:"scheduled_end"`

	JoinedAt *time.Time `db:"joined_at"`
	LeftAt   *time.Time `db:"left_at"`
	EndedAt  *time.Time `db:"ended_at"`

	ActualDurationSecs int `db:"actual_duration_secs"`
	ParticipantCount   int `db:"participant_count"`

	State    SessionState `db:"state"`
	Finished bool         `db:"finished"`

	RecordingStatus     RecordingStatus `db:"recording_status"`
	RecordingURL        string          `db:"recording_url"`
	ProviderRecordingID string          `db:"provider_recording_id"`

	// TokenCache maps a participant's full user id to the signed room
	// token most recently issued for them. Stored as JSONB.
	TokenCache map[string]string `db:"token_cache"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RoleFor returns the token role for a participant: the seller hosts,
// everyone else joins as a plain participant.
func (s *ConsultingSession) RoleFor(userID uuid.UUID) int {
	if userID == s.SellerID {
		return 1
	}
	return 0
}

// Participant reports whether userID belongs to this session.
func (s *ConsultingSession) Participant(userID uuid.UUID) bool {
	return userID == s.SellerID || userID == s.BuyerID
}
