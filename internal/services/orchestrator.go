package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/providers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/token"
)

// CreateSessionInput carries everything needed to turn one booking into
// a live session. BookingRef is the idempotency key: a second create
// for the same reference returns the existing session.
type CreateSessionInput struct {
	BookingRef     string
	BuyerID        uuid.UUID
	SellerID       uuid.UUID
	ServiceID      uuid.UUID
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// SessionOrchestrator turns a booked slot into a provisioned session:
// it selects a credit, creates the remote room, mints per-participant
// tokens and persists the whole thing as one SCHEDULED row.
type SessionOrchestrator struct {
	sessions SessionStore
	credits  CreditStore
	rooms    providers.RoomProvider
	bookings providers.BookingProvider
	issuer   *token.Issuer
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionOrchestrator(
	sessions SessionStore,
	credits CreditStore,
	rooms providers.RoomProvider,
	bookings providers.BookingProvider,
	issuer *token.Issuer,
	log zerolog.Logger,
	now func() time.Time,
) *SessionOrchestrator {
	if now == nil {
		now = time.Now
	}
	return &SessionOrchestrator{
		sessions: sessions,
		credits:  credits,
		rooms:    rooms,
		bookings: bookings,
		issuer:   issuer,
		log:      log,
		now:      now,
	}
}

// CreateSession provisions a session for a booking. Ordering matters:
// the room must exist before any token is minted because tokens embed
// the room topic. Room provisioning failures abort the call with no
// session row persisted.
func (o *SessionOrchestrator) CreateSession(ctx context.Context, in CreateSessionInput) (*models.ConsultingSession, map[string]string, error) {
	if in.BookingRef == "" {
		return nil, nil, apperrors.NewValidation("booking_ref", "booking reference is required")
	}
	if in.BuyerID == uuid.Nil || in.SellerID == uuid.Nil {
		return nil, nil, apperrors.NewValidation("participants", "buyer and seller ids are required")
	}

	// Upsert semantics keyed on the booking reference.
	existing, err := o.sessions.GetByBookingRef(ctx, in.BookingRef)
	if err == nil {
		o.log.Info().Str("booking_ref", in.BookingRef).Str("session_id", existing.ID.String()).
			Msg("session already exists for booking, returning existing")
		return existing, existing.TokenCache, nil
	}
	if !errors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, nil, err
	}

	credit, err := o.credits.SelectConsumable(ctx, in.BuyerID, in.SellerID, o.now())
	if err != nil {
		return nil, nil, err
	}

	topic := fmt.Sprintf("session-%s", uuid.New())

	room, err := o.rooms.CreateRoom(ctx, topic)
	if err != nil {
		return nil, nil, err
	}

	tokens := make(map[string]string, 2)
	for _, participant := range []uuid.UUID{in.SellerID, in.BuyerID} {
		role := token.RoleParticipant
		if participant == in.SellerID {
			role = token.RoleHost
		}
		signed, err := o.issuer.Issue(room.RoomName, participant.String(), role)
		if err != nil {
			return nil, nil, err
		}
		tokens[participant.String()] = signed
	}

	creditID := credit.ID
	session := &models.ConsultingSession{
		ID:              uuid.New(),
		BookingRef:      in.BookingRef,
		RoomID:          room.RoomID,
		RoomTopic:       room.RoomName,
		SellerID:        in.SellerID,
		BuyerID:         in.BuyerID,
		ServiceID:       in.ServiceID,
		CreditID:        &creditID,
		ScheduledStart:  in.ScheduledStart,
		ScheduledEnd:    in.ScheduledEnd,
		State:           models.SessionStateScheduled,
		RecordingStatus: models.RecordingStatusNone,
		TokenCache:      tokens,
	}

	if err := o.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateSession) {
			// Lost a create race; tear down our orphan room and hand
			// back the winner's session.
			if delErr := o.rooms.DeleteRoom(ctx, room.RoomName); delErr != nil {
				o.log.Warn().Err(delErr).Str("room", room.RoomName).Msg("failed to delete orphaned room after create race")
			}
			winner, getErr := o.sessions.GetByBookingRef(ctx, in.BookingRef)
			if getErr != nil {
				return nil, nil, getErr
			}
			return winner, winner.TokenCache, nil
		}
		return nil, nil, err
	}

	o.log.Info().
		Str("session_id", session.ID.String()).
		Str("booking_ref", in.BookingRef).
		Str("room", room.RoomName).
		Str("credit_id", creditID.String()).
		Msg("session created")

	return session, tokens, nil
}

// GetSession returns the current session row.
func (o *SessionOrchestrator) GetSession(ctx context.Context, id uuid.UUID) (*models.ConsultingSession, error) {
	return o.sessions.GetByID(ctx, id)
}

// CreateFromBookingRef resolves the booking with the calendar provider
// and provisions a session from its payload.
func (o *SessionOrchestrator) CreateFromBookingRef(ctx context.Context, bookingRef string, serviceID uuid.UUID) (*models.ConsultingSession, map[string]string, error) {
	if o.bookings == nil {
		return nil, nil, fmt.Errorf("%w: booking provider is not configured", apperrors.ErrConfig)
	}
	event, err := o.bookings.GetBooking(ctx, bookingRef)
	if err != nil {
		return nil, nil, err
	}

	buyerID, err := uuid.Parse(event.BuyerID)
	if err != nil {
		return nil, nil, apperrors.NewValidation("buyer_id", "booking carries a malformed buyer id")
	}
	sellerID, err := uuid.Parse(event.SellerID)
	if err != nil {
		return nil, nil, apperrors.NewValidation("seller_id", "booking carries a malformed seller id")
	}

	return o.CreateSession(ctx, CreateSessionInput{
		BookingRef:     event.Ref,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		ServiceID:      serviceID,
		ScheduledStart: event.StartsAt,
		ScheduledEnd:   event.EndsAt,
	})
}
