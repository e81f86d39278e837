package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/providers"
)

// SessionFinalizer owns every transition out of SCHEDULED: joins,
// completion, cancellation and the no-show sweep.
type SessionFinalizer struct {
	sessions SessionStore
	rooms    providers.RoomProvider
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionFinalizer(sessions SessionStore, rooms providers.RoomProvider, log zerolog.Logger, now func() time.Time) *SessionFinalizer {
	if now == nil {
		now = time.Now
	}
	return &SessionFinalizer{sessions: sessions, rooms: rooms, log: log, now: now}
}

// EndResult is what End reports back to the API layer.
type EndResult struct {
	Session            *models.ConsultingSession
	ActualDurationSecs int
}

// End force-ends a session. Only the seller (host) may call it. The
// state transition and the credit increment commit together; the remote
// room teardown is best-effort afterwards and never rolls anything
// back.
func (f *SessionFinalizer) End(ctx context.Context, sessionID, actorID uuid.UUID, actualDurationSecs, participantCount *int) (*EndResult, error) {
	session, err := f.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if actorID != session.SellerID {
		return nil, apperrors.ErrNotHost
	}

	endedAt := f.now()

	duration := 0
	switch {
	case actualDurationSecs != nil:
		duration = *actualDurationSecs
	case session.JoinedAt != nil:
		duration = int(endedAt.Sub(*session.JoinedAt).Seconds())
	}
	if duration < 0 {
		return nil, apperrors.NewValidation("actual_duration", "duration cannot be negative")
	}

	count := session.ParticipantCount
	if participantCount != nil {
		count = *participantCount
	}

	if err := f.sessions.CompleteWithCredit(ctx, sessionID, session.CreditID, endedAt, duration, count); err != nil {
		return nil, err
	}

	// Teardown is non-critical cleanup: a failure is logged and left
	// to the out-of-band sweep, never surfaced to the caller.
	if session.RoomTopic != "" {
		if err := f.rooms.DeleteRoom(ctx, session.RoomTopic); err != nil {
			f.log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Str("room", session.RoomTopic).
				Msg("room teardown failed after completion")
		}
	}

	session.State = models.SessionStateCompleted
	session.Finished = true
	session.EndedAt = &endedAt
	session.ActualDurationSecs = duration
	session.ParticipantCount = count

	f.log.Info().
		Str("session_id", sessionID.String()).
		Int("duration_secs", duration).
		Msg("session completed")

	return &EndResult{Session: session, ActualDurationSecs: duration}, nil
}

// RecordJoin moves a scheduled session to in_progress on the first
// observed join. Late join events against a terminal session are
// silently ignored by the state guard.
func (f *SessionFinalizer) RecordJoin(ctx context.Context, sessionID uuid.UUID) error {
	return f.sessions.MarkInProgress(ctx, sessionID, f.now())
}

// RecordLeave stores the leave timestamp for intermediate bookkeeping.
func (f *SessionFinalizer) RecordLeave(ctx context.Context, sessionID uuid.UUID) error {
	return f.sessions.UpdatePartial(ctx, sessionID, map[string]interface{}{
		"left_at": f.now(),
	})
}

// Update applies intermediate-event fields. The store enforces the
// column allowlist; this layer enforces who may touch what: only the
// host updates the live participant count.
func (f *SessionFinalizer) Update(ctx context.Context, sessionID, actorID uuid.UUID, fields map[string]interface{}) error {
	session, err := f.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Participant(actorID) {
		return apperrors.NewValidation("actor", "not a participant of this session")
	}
	if _, ok := fields["participant_count"]; ok && actorID != session.SellerID {
		return apperrors.ErrNotHost
	}
	return f.sessions.UpdatePartial(ctx, sessionID, fields)
}

// Cancel moves any non-terminal session to cancelled.
func (f *SessionFinalizer) Cancel(ctx context.Context, sessionID, actorID uuid.UUID) error {
	session, err := f.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Participant(actorID) {
		return apperrors.NewValidation("actor", "not a participant of this session")
	}
	return f.sessions.Cancel(ctx, sessionID)
}

// SweepNoShows transitions stale scheduled sessions. The bound credit
// is untouched: no-shows never consume.
func (f *SessionFinalizer) SweepNoShows(ctx context.Context) (int64, error) {
	moved, err := f.sessions.SweepNoShows(ctx, f.now())
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		f.log.Info().Int64("sessions", moved).Msg("no-show sweep moved sessions")
	}
	return moved, nil
}
