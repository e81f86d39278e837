package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

const sessionColumns = `
	id,
	booking_ref,
	room_id,
	room_topic,
	seller_id,
	buyer_id,
	service_id,
	credit_id,
	scheduled_start,
	scheduled_end,
	joined_at,
	left_at,
	ended_at,
	actual_duration_secs,
	participant_count,
	state,
	finished,
	recording_status,
	recording_url,
	provider_recording_id,
	token_cache,
	created_at,
	updated_at`

// partialUpdateAllowlist restricts which columns the partial-update
// path may touch. Billing-relevant columns (state, finished, ended_at)
// are deliberately absent; those only move through CompleteWithCredit.
var partialUpdateAllowlist = map[string]bool{
	"joined_at":         true,
	"left_at":           true,
	"participant_count": true,
}

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session. A concurrent create for the same
// booking reference hits the unique constraint and maps to
// ErrDuplicateSession so the caller can fall back to the existing row.
func (r *SessionRepository) Create(ctx context.Context, session *models.ConsultingSession) error {
	const query = `
	INSERT INTO consulting_sessions (
		id,
		booking_ref,
		room_id,
		room_topic,
		seller_id,
		buyer_id,
		service_id,
		credit_id,
		scheduled_start,
		scheduled_end,
		state,
		finished,
		recording_status,
		token_cache,
		created_at,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	cache, err := json.Marshal(session.TokenCache)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(
		ctx,
		query,
		session.ID,
		session.BookingRef,
		session.RoomID,
		session.RoomTopic,
		session.SellerID,
		session.BuyerID,
		session.ServiceID,
		session.CreditID,
		session.ScheduledStart,
		session.ScheduledEnd,
		session.State,
		session.Finished,
		session.RecordingStatus,
		cache,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return apperrors.ErrDuplicateSession
	}
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConsultingSession, error) {
	query := `SELECT` + sessionColumns + ` FROM consulting_sessions WHERE id = $1 LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *SessionRepository) GetByBookingRef(ctx context.Context, bookingRef string) (*models.ConsultingSession, error) {
	query := `SELECT` + sessionColumns + ` FROM consulting_sessions WHERE booking_ref = $1 LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, bookingRef))
}

// MarkInProgress records the first observed join. Guarded by the
// current state so a join event arriving after completion is a no-op.
func (r *SessionRepository) MarkInProgress(ctx context.Context, id uuid.UUID, joinedAt time.Time) error {
	const query = `
	UPDATE consulting_sessions
	SET state = $1, joined_at = COALESCE(joined_at, $2), updated_at = NOW()
	WHERE id = $3 AND state = $4
	`

	_, err := r.db.ExecContext(ctx, query, models.SessionStateInProgress, joinedAt, id, models.SessionStateScheduled)
	return err
}

// CompleteWithCredit applies the terminal transition and the credit
// increment in one transaction. The conditional UPDATE on state is the
// concurrency guard: of two racing end calls exactly one sees a
// non-terminal row, the other gets ErrAlreadyFinished.
func (r *SessionRepository) CompleteWithCredit(
	ctx context.Context,
	id uuid.UUID,
	creditID *uuid.UUID,
	endedAt time.Time,
	durationSecs int,
	participantCount int,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const sessionQuery = `
	UPDATE consulting_sessions
	SET
		state = $1,
		finished = TRUE,
		ended_at = $2,
		actual_duration_secs = $3,
		participant_count = $4,
		updated_at = NOW()
	WHERE id = $5 AND state IN ($6, $7)
	`

	res, err := tx.ExecContext(
		ctx,
		sessionQuery,
		models.SessionStateCompleted,
		endedAt,
		durationSecs,
		participantCount,
		id,
		models.SessionStateScheduled,
		models.SessionStateInProgress,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrAlreadyFinished
	}

	if creditID != nil {
		const creditQuery = `
		UPDATE credits
		SET used_sessions = used_sessions + 1
		WHERE id = $1 AND used_sessions < total_sessions
		`

		res, err = tx.ExecContext(ctx, creditQuery, *creditID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("credit %s: %w", *creditID, apperrors.ErrCreditExhausted)
		}
	}

	return tx.Commit()
}

// Cancel transitions any non-terminal session to cancelled.
func (r *SessionRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	const query = `
	UPDATE consulting_sessions
	SET state = $1, updated_at = NOW()
	WHERE id = $2 AND state IN ($3, $4)
	`

	res, err := r.db.ExecContext(ctx, query, models.SessionStateCancelled, id,
		models.SessionStateScheduled, models.SessionStateInProgress)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrAlreadyFinished
	}
	return nil
}

// SweepNoShows moves scheduled sessions whose window has passed without
// a join to no_show and returns how many rows moved. The cutoff is the
// scheduled end, not the start: late joiners keep their slot until it
// is fully over.
func (r *SessionRepository) SweepNoShows(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
	UPDATE consulting_sessions
	SET state = $1, updated_at = NOW()
	WHERE state = $2 AND scheduled_end < $3 AND joined_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, models.SessionStateNoShow, models.SessionStateScheduled, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListNeedingRecording returns completed sessions within the window
// that still lack a confirmed recording.
func (r *SessionRepository) ListNeedingRecording(ctx context.Context, since time.Time) ([]*models.ConsultingSession, error) {
	query := `
	SELECT` + sessionColumns + `
	FROM consulting_sessions
	WHERE state = $1
	  AND ended_at >= $2
	  AND room_topic <> ''
	  AND recording_status IN ($3, $4, $5)
	ORDER BY ended_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.SessionStateCompleted, since,
		models.RecordingStatusNone, models.RecordingStatusProcessing, models.RecordingStatusNotFound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.ConsultingSession
	for rows.Next() {
		session, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ListClaimedRecordingIDs returns provider recording ids already
// attached to a confirmed session in the window, so reconciliation can
// exclude them from the candidate pool.
func (r *SessionRepository) ListClaimedRecordingIDs(ctx context.Context, since time.Time) ([]string, error) {
	const query = `
	SELECT provider_recording_id
	FROM consulting_sessions
	WHERE provider_recording_id <> ''
	  AND recording_status IN ($1, $2)
	  AND ended_at >= $3
	`

	rows, err := r.db.QueryContext(ctx, query, models.RecordingStatusReady, models.RecordingStatusFailed, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateRecording is the reconciler's single write path for recording
// state.
func (r *SessionRepository) UpdateRecording(
	ctx context.Context,
	id uuid.UUID,
	status models.RecordingStatus,
	recordingURL string,
	providerRecordingID string,
) error {
	const query = `
	UPDATE consulting_sessions
	SET recording_status = $1, recording_url = $2, provider_recording_id = $3, updated_at = NOW()
	WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query, status, recordingURL, providerRecordingID, id)
	return err
}

// SaveTokenCache replaces the per-participant token cache.
func (r *SessionRepository) SaveTokenCache(ctx context.Context, id uuid.UUID, cache map[string]string) error {
	payload, err := json.Marshal(cache)
	if err != nil {
		return err
	}

	const query = `
	UPDATE consulting_sessions
	SET token_cache = $1, updated_at = NOW()
	WHERE id = $2
	`

	_, err = r.db.ExecContext(ctx, query, payload, id)
	return err
}

// UpdatePartial applies intermediate-event fields. Columns outside the
// allowlist are rejected rather than silently dropped.
func (r *SessionRepository) UpdatePartial(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	query := "UPDATE consulting_sessions SET updated_at = NOW()"
	args := make([]interface{}, 0, len(fields)+1)
	for column, value := range fields {
		if !partialUpdateAllowlist[column] {
			return apperrors.NewValidation(column, "field may not be updated through this path")
		}
		args = append(args, value)
		query += fmt.Sprintf(", %s = $%d", column, len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(" WHERE id = $%d", len(args))

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SessionRepository) scanOne(row rowScanner) (*models.ConsultingSession, error) {
	var session models.ConsultingSession
	var cache []byte

	err := row.Scan(
		&session.ID,
		&session.BookingRef,
		&session.RoomID,
		&session.RoomTopic,
		&session.SellerID,
		&session.BuyerID,
		&session.ServiceID,
		&session.CreditID,
		&session.ScheduledStart,
		&session.ScheduledEnd,
		&session.JoinedAt,
		&session.LeftAt,
		&session.EndedAt,
		&session.ActualDurationSecs,
		&session.ParticipantCount,
		&session.State,
		&session.Finished,
		&session.RecordingStatus,
		&session.RecordingURL,
		&session.ProviderRecordingID,
		&cache,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(cache) > 0 {
		if err := json.Unmarshal(cache, &session.TokenCache); err != nil {
			return nil, err
		}
	}

	return &session, nil
}
