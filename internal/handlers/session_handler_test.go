package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultbridge/ConsultBridge-Backend/internal/handlers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/routes"
	"github.com/consultbridge/ConsultBridge-Backend/internal/services"
	"github.com/consultbridge/ConsultBridge-Backend/internal/testfixtures"
	"github.com/consultbridge/ConsultBridge-Backend/internal/token"
)

const testJWTSecret = "handler-test-jwt-secret"

type handlerFixture struct {
	router   *gin.Engine
	sessions *testfixtures.SessionStore
	credits  *testfixtures.CreditStore
	rooms    *testfixtures.RoomProvider
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	credits := testfixtures.NewCreditStore()
	sessions := testfixtures.NewSessionStore(credits)
	rooms := testfixtures.NewRoomProvider()
	log := zerolog.Nop()

	issuer, err := token.NewIssuer("handler-test-signing-key", "primary", 24*time.Hour, nil)
	require.NoError(t, err)

	orchestrator := services.NewSessionOrchestrator(sessions, credits, rooms, nil, issuer, log, nil)
	finalizer := services.NewSessionFinalizer(sessions, rooms, log, nil)
	reconciler := services.NewRecordingReconciler(sessions, rooms, 72*time.Hour, log, nil)
	access := services.NewSessionAccess(sessions, issuer, log)

	router := gin.New()
	routes.RegisterProtectedEndpoints(
		router,
		handlers.NewSessionHandler(orchestrator, finalizer, access, log),
		handlers.NewRecordingHandler(reconciler, log),
		testJWTSecret,
	)

	return &handlerFixture{router: router, sessions: sessions, credits: credits, rooms: rooms}
}

func bearerFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (f *handlerFixture) seedSession(t *testing.T) *models.ConsultingSession {
	t.Helper()

	credit := &models.Credit{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		PaymentRef:    "pay_" + uuid.NewString(),
		TotalSessions: 2,
	}
	_, err := f.credits.Create(context.Background(), credit)
	require.NoError(t, err)

	session := &models.ConsultingSession{
		ID:              uuid.New(),
		BookingRef:      "booking-" + uuid.NewString(),
		RoomTopic:       "session-" + uuid.NewString(),
		SellerID:        credit.SellerID,
		BuyerID:         credit.BuyerID,
		ServiceID:       uuid.New(),
		CreditID:        &credit.ID,
		ScheduledStart:  time.Now().Add(-time.Hour),
		ScheduledEnd:    time.Now().Add(-30 * time.Minute),
		State:           models.SessionStateScheduled,
		RecordingStatus: models.RecordingStatusNone,
	}
	require.NoError(t, f.sessions.Create(context.Background(), session))
	return session
}

func (f *handlerFixture) do(t *testing.T, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestEndSessionEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	session := f.seedSession(t)
	auth := bearerFor(t, session.SellerID)
	path := "/api/sessions/" + session.ID.String() + "/end"

	rec := f.do(t, http.MethodPost, path, auth, map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "completed", first.State)

	// The second end is a no-op success at the API boundary, not an
	// error, and the credit is not consumed again.
	rec = f.do(t, http.MethodPost, path, auth, map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	credit, err := f.credits.GetByID(context.Background(), *session.CreditID)
	require.NoError(t, err)
	assert.Equal(t, 1, credit.UsedSessions)
}

func TestEndSessionForbiddenForBuyer(t *testing.T) {
	f := newHandlerFixture(t)
	session := f.seedSession(t)

	rec := f.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/end", bearerFor(t, session.BuyerID), map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEndSessionRequiresAuth(t *testing.T) {
	f := newHandlerFixture(t)
	session := f.seedSession(t)

	rec := f.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/end", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSessionEndpointExhaustedCredit(t *testing.T) {
	f := newHandlerFixture(t)
	auth := bearerFor(t, uuid.New())

	body := map[string]interface{}{
		"booking_ref":     "booking-x",
		"buyer_id":        uuid.NewString(),
		"seller_id":       uuid.NewString(),
		"service_id":      uuid.NewString(),
		"scheduled_start": time.Now().Add(time.Hour).Format(time.RFC3339),
		"scheduled_end":   time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	}

	rec := f.do(t, http.MethodPost, "/api/sessions", auth, body)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 0, f.sessions.Count())
}

func TestGetAccessEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	session := f.seedSession(t)

	rec := f.do(t, http.MethodGet, "/api/sessions/"+session.ID.String()+"/access", bearerFor(t, session.SellerID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token     string `json:"token"`
		Role      int    `json:"role"`
		RoomTopic string `json:"room_topic"`
		State     string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, 1, resp.Role)
	assert.Equal(t, session.RoomTopic, resp.RoomTopic)
	assert.Equal(t, "scheduled", resp.State)
}

func TestSyncRecordingsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/recordings/sync", bearerFor(t, uuid.New()), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Checked  int `json:"checked"`
		Updated  int `json:"updated"`
		Orphaned int `json:"orphaned"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Checked)
}
