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
	"github.com/consultbridge/ConsultBridge-Backend/internal/testfixtures"
	"github.com/consultbridge/ConsultBridge-Backend/internal/token"
)

type accessFixture struct {
	access   *SessionAccess
	sessions *testfixtures.SessionStore
	issuer   *token.Issuer
	clock    *testfixtures.Clock
	session  *models.ConsultingSession
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	sessions := testfixtures.NewSessionStore(nil)

	issuer, err := token.NewIssuer("access-test-signing-key", "primary", 24*time.Hour, clock.NowFunc())
	require.NoError(t, err)

	session := &models.ConsultingSession{
		ID:              uuid.New(),
		BookingRef:      "booking-1",
		RoomTopic:       "session-room-1",
		SellerID:        uuid.New(),
		BuyerID:         uuid.New(),
		ServiceID:       uuid.New(),
		ScheduledStart:  clock.Now().Add(time.Hour),
		ScheduledEnd:    clock.Now().Add(90 * time.Minute),
		State:           models.SessionStateScheduled,
		RecordingStatus: models.RecordingStatusNone,
	}
	require.NoError(t, sessions.Create(context.Background(), session))

	return &accessFixture{
		access:   NewSessionAccess(sessions, issuer, zerolog.Nop()),
		sessions: sessions,
		issuer:   issuer,
		clock:    clock,
		session:  session,
	}
}

func TestAccessIssuesAndCachesToken(t *testing.T) {
	f := newAccessFixture(t)

	info, err := f.access.Access(context.Background(), f.session.ID, f.session.BuyerID)
	require.NoError(t, err)

	assert.Equal(t, token.RoleParticipant, info.Role)
	assert.Equal(t, "session-room-1", info.RoomTopic)
	assert.True(t, f.issuer.Validate(info.Token))

	// Cache keyed by the full user id.
	stored, err := f.sessions.GetByID(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Token, stored.TokenCache[f.session.BuyerID.String()])

	// A second read serves the cached token unchanged.
	again, err := f.access.Access(context.Background(), f.session.ID, f.session.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, info.Token, again.Token)
}

func TestAccessGrantsHostRoleToSeller(t *testing.T) {
	f := newAccessFixture(t)

	info, err := f.access.Access(context.Background(), f.session.ID, f.session.SellerID)
	require.NoError(t, err)
	assert.Equal(t, token.RoleHost, info.Role)

	claims, err := f.issuer.Parse(info.Token)
	require.NoError(t, err)
	assert.Equal(t, token.RoleHost, claims.Role)
	assert.True(t, claims.HasAllRequiredFields())
}

func TestAccessRegeneratesExpiredCachedToken(t *testing.T) {
	f := newAccessFixture(t)

	first, err := f.access.Access(context.Background(), f.session.ID, f.session.BuyerID)
	require.NoError(t, err)

	// Push the clock past the token lifetime; the cached credential no
	// longer validates and must be replaced.
	f.clock.Advance(25 * time.Hour)

	second, err := f.access.Access(context.Background(), f.session.ID, f.session.BuyerID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
	assert.True(t, f.issuer.Validate(second.Token))
}

func TestAccessRejectsStrangers(t *testing.T) {
	f := newAccessFixture(t)

	_, err := f.access.Access(context.Background(), f.session.ID, uuid.New())
	assert.True(t, apperrors.IsValidation(err))
}

func TestAccessUnknownSession(t *testing.T) {
	f := newAccessFixture(t)

	_, err := f.access.Access(context.Background(), uuid.New(), f.session.BuyerID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
