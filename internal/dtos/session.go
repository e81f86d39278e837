package dtos

import (
	"time"

	"github.com/google/uuid"
)

// Create session request/response.

type CreateSessionRequest struct {
	BookingRef     string    `json:"booking_ref" binding:"required"`
	BuyerID        string    `json:"buyer_id" binding:"required,uuid"`
	SellerID       string    `json:"seller_id" binding:"required,uuid"`
	ServiceID      string    `json:"service_id" binding:"required,uuid"`
	ScheduledStart time.Time `json:"scheduled_start" binding:"required"`
	ScheduledEnd   time.Time `json:"scheduled_end" binding:"required"`
}

// CreateFromBookingRequest provisions a session from a booking held by
// the calendar provider; participants and timing come from the event.
type CreateFromBookingRequest struct {
	BookingRef string `json:"booking_ref" binding:"required"`
	ServiceID  string `json:"service_id" binding:"required,uuid"`
}

type CreateSessionResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	RoomTopic string            `json:"room_topic"`
	State     string            `json:"state"`
	Tokens    map[string]string `json:"tokens"`
}

// Session access (room credentials for one participant).

type SessionAccessResponse struct {
	Token     string `json:"token"`
	Role      int    `json:"role"`
	RoomTopic string `json:"room_topic"`
	State     string `json:"state"`
}

// End session.

type EndSessionRequest struct {
	ActualDurationSecs *int `json:"actual_duration_secs,omitempty" binding:"omitempty,min=0"`
	ParticipantCount   *int `json:"participant_count,omitempty" binding:"omitempty,min=0"`
}

type EndSessionResponse struct {
	State              string `json:"state"`
	ActualDurationSecs int    `json:"actual_duration_secs"`
}

// Intermediate session events (join/leave/participant count).

type SessionEventRequest struct {
	Event            string `json:"event" binding:"required,oneof=join leave"`
	ParticipantCount *int   `json:"participant_count,omitempty" binding:"omitempty,min=0"`
}

// Recording sync report.

type SyncRecordingsResponse struct {
	Checked        int            `json:"checked"`
	Updated        int            `json:"updated"`
	Orphaned       int            `json:"orphaned"`
	StrategyCounts map[string]int `json:"strategy_counts"`
}
