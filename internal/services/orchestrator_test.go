package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/providers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/testfixtures"
	"github.com/consultbridge/ConsultBridge-Backend/internal/token"
)

type orchestratorFixture struct {
	orchestrator *SessionOrchestrator
	sessions     *testfixtures.SessionStore
	credits      *testfixtures.CreditStore
	rooms        *testfixtures.RoomProvider
	clock        *testfixtures.Clock
	buyerID      uuid.UUID
	sellerID     uuid.UUID
	serviceID    uuid.UUID
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	credits := testfixtures.NewCreditStore()
	sessions := testfixtures.NewSessionStore(credits)
	rooms := testfixtures.NewRoomProvider()

	issuer, err := token.NewIssuer("orchestrator-test-key", "primary", 24*time.Hour, clock.NowFunc())
	require.NoError(t, err)

	f := &orchestratorFixture{
		sessions:  sessions,
		credits:   credits,
		rooms:     rooms,
		clock:     clock,
		buyerID:   uuid.New(),
		sellerID:  uuid.New(),
		serviceID: uuid.New(),
	}
	f.orchestrator = NewSessionOrchestrator(sessions, credits, rooms, nil, issuer, zerolog.Nop(), clock.NowFunc())
	return f
}

func (f *orchestratorFixture) grantCredit(t *testing.T, total, used int) uuid.UUID {
	t.Helper()

	credit := &models.Credit{
		ID:            uuid.New(),
		BuyerID:       f.buyerID,
		SellerID:      f.sellerID,
		PaymentRef:    "pay_" + uuid.NewString(),
		TotalSessions: total,
		UsedSessions:  used,
	}
	_, err := f.credits.Create(context.Background(), credit)
	require.NoError(t, err)
	return credit.ID
}

func (f *orchestratorFixture) input(bookingRef string) CreateSessionInput {
	start := f.clock.Now().Add(time.Hour)
	return CreateSessionInput{
		BookingRef:     bookingRef,
		BuyerID:        f.buyerID,
		SellerID:       f.sellerID,
		ServiceID:      f.serviceID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(30 * time.Minute),
	}
}

func TestCreateSessionProvisionsRoomAndTokens(t *testing.T) {
	f := newOrchestratorFixture(t)
	creditID := f.grantCredit(t, 3, 0)

	session, tokens, err := f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.NoError(t, err)

	assert.Equal(t, models.SessionStateScheduled, session.State)
	assert.False(t, session.Finished)
	require.NotNil(t, session.CreditID)
	assert.Equal(t, creditID, *session.CreditID)
	assert.NotEmpty(t, session.RoomTopic)
	assert.Len(t, f.rooms.CreatedRooms, 1)

	// One token per participant, host role for the seller.
	require.Len(t, tokens, 2)
	assert.Contains(t, tokens, f.sellerID.String())
	assert.Contains(t, tokens, f.buyerID.String())

	// Binding does not consume: the counter only moves on completion.
	credit, err := f.credits.GetByID(context.Background(), creditID)
	require.NoError(t, err)
	assert.Equal(t, 0, credit.UsedSessions)
}

func TestCreateSessionWithoutCreditFailsAndPersistsNothing(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.grantCredit(t, 1, 1) // fully consumed

	_, _, err := f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.ErrorIs(t, err, apperrors.ErrCreditExhausted)

	assert.Equal(t, 0, f.sessions.Count())
	assert.Empty(t, f.rooms.CreatedRooms, "no room should be provisioned without a credit")
}

func TestCreateSessionExpiredCreditDoesNotQualify(t *testing.T) {
	f := newOrchestratorFixture(t)

	expired := f.clock.Now().Add(-time.Hour)
	credit := &models.Credit{
		ID:            uuid.New(),
		BuyerID:       f.buyerID,
		SellerID:      f.sellerID,
		PaymentRef:    "pay_expired",
		TotalSessions: 5,
		ExpiresAt:     &expired,
	}
	_, err := f.credits.Create(context.Background(), credit)
	require.NoError(t, err)

	_, _, err = f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.ErrorIs(t, err, apperrors.ErrCreditExhausted)
}

func TestCreateSessionConsumesOldestCreditFirst(t *testing.T) {
	f := newOrchestratorFixture(t)
	oldest := f.grantCredit(t, 1, 0)
	f.grantCredit(t, 1, 0)

	session, _, err := f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.NoError(t, err)
	require.NotNil(t, session.CreditID)
	assert.Equal(t, oldest, *session.CreditID)
}

func TestCreateSessionIsIdempotentPerBooking(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.grantCredit(t, 3, 0)

	first, firstTokens, err := f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.NoError(t, err)

	second, secondTokens, err := f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, firstTokens, secondTokens)
	assert.Equal(t, 1, f.sessions.Count())
	assert.Len(t, f.rooms.CreatedRooms, 1, "no duplicate room for a repeated booking")
}

func TestCreateSessionProviderFailureAbortsWithoutRow(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.grantCredit(t, 3, 0)
	f.rooms.CreateErr = apperrors.NewProvider("create room", 503, assert.AnError)

	_, _, err := f.orchestrator.CreateSession(context.Background(), f.input("booking-1"))
	require.True(t, apperrors.IsProvider(err))

	assert.Equal(t, 0, f.sessions.Count(), "no partial session may be persisted")
}

func TestCreateFromBookingRefResolvesParticipants(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.grantCredit(t, 3, 0)

	bookings := testfixtures.NewBookingProvider()
	start := f.clock.Now().Add(time.Hour)
	bookings.Bookings["booking-1"] = &providers.BookingEvent{
		Ref:      "booking-1",
		BuyerID:  f.buyerID.String(),
		SellerID: f.sellerID.String(),
		StartsAt: start,
		EndsAt:   start.Add(30 * time.Minute),
	}
	f.orchestrator.bookings = bookings

	session, tokens, err := f.orchestrator.CreateFromBookingRef(context.Background(), "booking-1", f.serviceID)
	require.NoError(t, err)

	assert.Equal(t, "booking-1", session.BookingRef)
	assert.Equal(t, f.buyerID, session.BuyerID)
	assert.Equal(t, f.sellerID, session.SellerID)
	assert.True(t, session.ScheduledStart.Equal(start))
	assert.Len(t, tokens, 2)
	assert.Equal(t, 1, bookings.Lookups)

	// A repeat of the same booking returns the existing session.
	again, _, err := f.orchestrator.CreateFromBookingRef(context.Background(), "booking-1", f.serviceID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)
	assert.Equal(t, 1, f.sessions.Count())
}

func TestCreateFromBookingRefWithoutProvider(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, _, err := f.orchestrator.CreateFromBookingRef(context.Background(), "booking-1", f.serviceID)
	require.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestCreateSessionValidatesInput(t *testing.T) {
	f := newOrchestratorFixture(t)

	in := f.input("")
	_, _, err := f.orchestrator.CreateSession(context.Background(), in)
	assert.True(t, apperrors.IsValidation(err))

	in = f.input("booking-1")
	in.BuyerID = uuid.Nil
	_, _, err = f.orchestrator.CreateSession(context.Background(), in)
	assert.True(t, apperrors.IsValidation(err))
}
