package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/providers"
)

// SyncReport summarises one reconciliation pass for operators.
type SyncReport struct {
	Checked        int            `json:"checked"`
	Updated        int            `json:"updated"`
	Orphaned       int            `json:"orphaned"`
	StrategyCounts map[string]int `json:"strategy_counts"`
}

// RecordingReconciler matches externally produced recordings to local
// completed sessions after the fact. It is the only writer of the
// recording fields and is safe to re-run: an unchanged data set yields
// an unchanged outcome.
type RecordingReconciler struct {
	sessions SessionStore
	rooms    providers.RoomProvider
	window   time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewRecordingReconciler(sessions SessionStore, rooms providers.RoomProvider, window time.Duration, log zerolog.Logger, now func() time.Time) *RecordingReconciler {
	if window <= 0 {
		window = 72 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &RecordingReconciler{sessions: sessions, rooms: rooms, window: window, log: log, now: now}
}

// Sync runs one reconciliation pass over the recent window.
func (r *RecordingReconciler) Sync(ctx context.Context) (*SyncReport, error) {
	since := r.now().Add(-r.window)

	sessions, err := r.sessions.ListNeedingRecording(ctx, since)
	if err != nil {
		return nil, err
	}

	recordings, err := r.rooms.ListRecordings(ctx, since)
	if err != nil {
		return nil, err
	}

	// Recordings already attached to a confirmed session are off the
	// table before matching starts, otherwise a weaker strategy could
	// hand them to a second session on a later pass.
	attached, err := r.sessions.ListClaimedRecordingIDs(ctx, since)
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]bool, len(recordings))
	for _, id := range attached {
		claimed[id] = true
	}

	report := &SyncReport{
		Checked:        len(sessions),
		StrategyCounts: make(map[string]int),
	}

	matches := r.assign(sessions, recordings, claimed)

	for _, session := range sessions {
		match, ok := matches[session.ID]
		if !ok {
			if r.applyNoMatch(ctx, session) {
				report.Updated++
			}
			continue
		}

		report.StrategyCounts[match.strategy]++

		changed, err := r.applyMatch(ctx, session, match.rec)
		if err != nil {
			r.log.Error().Err(err).
				Str("session_id", session.ID.String()).
				Str("recording_id", match.rec.ID).
				Msg("failed to apply recording match")
			continue
		}
		if changed {
			report.Updated++
		}
	}

	for _, rec := range recordings {
		if !claimed[rec.ID] {
			report.Orphaned++
			r.log.Warn().
				Str("recording_id", rec.ID).
				Str("room_name", rec.RoomName).
				Msg("orphaned recording: no matching session")
		}
	}

	r.log.Info().
		Int("checked", report.Checked).
		Int("updated", report.Updated).
		Int("orphaned", report.Orphaned).
		Msg("recording sync pass finished")

	return report, nil
}

type sessionMatch struct {
	rec      *models.ExternalRecording
	strategy string
}

// assign pairs sessions with recordings, at most one session per
// recording. Strategies run strategy-major, not session-major: every
// session gets its shot at an exact match before any session falls back
// to a weaker heuristic, so a low-confidence timestamp guess can never
// steal a recording another session matches precisely. A recording is
// removed from the candidate pool the moment it is claimed.
func (r *RecordingReconciler) assign(sessions []*models.ConsultingSession, recordings []models.ExternalRecording, claimed map[string]bool) map[uuid.UUID]sessionMatch {
	matches := make(map[uuid.UUID]sessionMatch, len(sessions))

	for _, strategy := range matchStrategies {
		for _, session := range sessions {
			if _, done := matches[session.ID]; done {
				continue
			}

			available := make([]models.ExternalRecording, 0, len(recordings))
			for _, rec := range recordings {
				if !claimed[rec.ID] {
					available = append(available, rec)
				}
			}

			matched, err := strategy.match(session, available)
			if err != nil {
				if errors.Is(err, apperrors.ErrAmbiguousMatch) {
					r.log.Debug().
						Str("session_id", session.ID.String()).
						Str("strategy", strategy.name).
						Msg("ambiguous candidates, leaving unmatched")
				}
				continue
			}
			if matched == nil {
				continue
			}

			claimed[matched.ID] = true
			matches[session.ID] = sessionMatch{rec: matched, strategy: strategy.name}
		}
	}

	return matches
}

// applyMatch writes the matched recording's state onto the session and
// reports whether anything actually changed.
func (r *RecordingReconciler) applyMatch(ctx context.Context, session *models.ConsultingSession, rec *models.ExternalRecording) (bool, error) {
	var status models.RecordingStatus
	url := session.RecordingURL

	switch rec.Status {
	case models.ExternalRecordingFinished:
		status = models.RecordingStatusReady
		// Already confirmed against the same recording: nothing to
		// re-fetch.
		if session.RecordingStatus == models.RecordingStatusReady &&
			session.ProviderRecordingID == rec.ID &&
			session.RecordingURL != "" {
			return false, nil
		}
		resolved := rec.DownloadURL
		if resolved == "" {
			link, err := r.rooms.GetDownloadLink(ctx, rec.ID)
			if err != nil {
				return false, err
			}
			resolved = link
		}
		url = resolved
	case models.ExternalRecordingInProgress:
		status = models.RecordingStatusProcessing
	case models.ExternalRecordingFailed:
		status = models.RecordingStatusFailed
	default:
		status = models.RecordingStatusProcessing
	}

	if session.RecordingStatus == status &&
		session.RecordingURL == url &&
		session.ProviderRecordingID == rec.ID {
		return false, nil
	}

	if err := r.sessions.UpdateRecording(ctx, session.ID, status, url, rec.ID); err != nil {
		return false, err
	}
	return true, nil
}

// applyNoMatch marks the session NOT_FOUND, distinct from PROCESSING,
// so operators can tell "still rendering" from "nothing ever produced".
func (r *RecordingReconciler) applyNoMatch(ctx context.Context, session *models.ConsultingSession) bool {
	if session.RecordingStatus == models.RecordingStatusNotFound {
		return false
	}
	if err := r.sessions.UpdateRecording(ctx, session.ID, models.RecordingStatusNotFound, session.RecordingURL, session.ProviderRecordingID); err != nil {
		r.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to mark recording not found")
		return false
	}
	return true
}
