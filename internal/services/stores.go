package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

// SessionStore is the persistence surface the lifecycle services need.
// Satisfied by repositories.SessionRepository in production and by an
// in-memory store in tests.
type SessionStore interface {
	Create(ctx context.Context, session *models.ConsultingSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConsultingSession, error)
	GetByBookingRef(ctx context.Context, bookingRef string) (*models.ConsultingSession, error)
	MarkInProgress(ctx context.Context, id uuid.UUID, joinedAt time.Time) error
	CompleteWithCredit(ctx context.Context, id uuid.UUID, creditID *uuid.UUID, endedAt time.Time, durationSecs, participantCount int) error
	Cancel(ctx context.Context, id uuid.UUID) error
	SweepNoShows(ctx context.Context, cutoff time.Time) (int64, error)
	ListNeedingRecording(ctx context.Context, since time.Time) ([]*models.ConsultingSession, error)
	ListClaimedRecordingIDs(ctx context.Context, since time.Time) ([]string, error)
	UpdateRecording(ctx context.Context, id uuid.UUID, status models.RecordingStatus, recordingURL, providerRecordingID string) error
	SaveTokenCache(ctx context.Context, id uuid.UUID, cache map[string]string) error
	UpdatePartial(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
}

// CreditStore tracks purchased session packages and their consumption.
// The completion flow increments usage inside SessionStore's
// CompleteWithCredit transaction; Finalize is the contract for
// incrementing outside that flow.
type CreditStore interface {
	Create(ctx context.Context, credit *models.Credit) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Credit, error)
	SelectConsumable(ctx context.Context, buyerID, sellerID uuid.UUID, now time.Time) (*models.Credit, error)
	Finalize(ctx context.Context, id uuid.UUID) error
}
