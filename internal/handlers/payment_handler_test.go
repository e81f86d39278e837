package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/handlers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/testfixtures"
)

const testWebhookSecret = "webhook-secret"

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, event, paymentID string, notes map[string]string) []byte {
	t.Helper()
	payload := map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":    paymentID,
					"notes": notes,
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func newPaymentRouter(credits *testfixtures.CreditStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/webhooks/razorpay", handlers.NewPaymentHandler(credits, testWebhookSecret, zerolog.Nop()).RazorpayWebhook)
	return router
}

func TestWebhookRecordsCredit(t *testing.T) {
	credits := testfixtures.NewCreditStore()
	router := newPaymentRouter(credits)

	buyerID := uuid.New()
	sellerID := uuid.New()
	body := webhookBody(t, "payment.captured", "pay_123", map[string]string{
		"buyer_id":       buyerID.String(),
		"seller_id":      sellerID.String(),
		"total_sessions": "5",
	})

	rec := postWebhook(router, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	credit, err := credits.SelectConsumable(context.Background(), buyerID, sellerID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5, credit.TotalSessions)
	assert.Equal(t, "pay_123", credit.PaymentRef)
}

func TestWebhookReplayDoesNotDuplicate(t *testing.T) {
	credits := testfixtures.NewCreditStore()
	router := newPaymentRouter(credits)

	buyerID := uuid.New()
	sellerID := uuid.New()
	body := webhookBody(t, "payment.captured", "pay_123", map[string]string{
		"buyer_id":       buyerID.String(),
		"seller_id":      sellerID.String(),
		"total_sessions": "5",
	})
	signature := signWebhook(body)

	require.Equal(t, http.StatusOK, postWebhook(router, body, signature).Code)
	require.Equal(t, http.StatusOK, postWebhook(router, body, signature).Code)

	first, err := credits.SelectConsumable(context.Background(), buyerID, sellerID, time.Now())
	require.NoError(t, err)

	// Consume the only credit fully; a duplicate would still qualify.
	for i := 0; i < 5; i++ {
		require.NoError(t, credits.Finalize(context.Background(), first.ID))
	}
	_, err = credits.SelectConsumable(context.Background(), buyerID, sellerID, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrCreditExhausted)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	credits := testfixtures.NewCreditStore()
	router := newPaymentRouter(credits)

	body := webhookBody(t, "payment.captured", "pay_123", map[string]string{
		"buyer_id":       uuid.NewString(),
		"seller_id":      uuid.NewString(),
		"total_sessions": "5",
	})

	assert.Equal(t, http.StatusUnauthorized, postWebhook(router, body, "deadbeef").Code)
	assert.Equal(t, http.StatusUnauthorized, postWebhook(router, body, "").Code)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	credits := testfixtures.NewCreditStore()
	router := newPaymentRouter(credits)

	body := webhookBody(t, "payment.failed", "pay_123", nil)
	rec := postWebhook(router, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := credits.SelectConsumable(context.Background(), uuid.New(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, apperrors.ErrCreditExhausted)
}

func TestWebhookRejectsUnusableNotes(t *testing.T) {
	credits := testfixtures.NewCreditStore()
	router := newPaymentRouter(credits)

	body := webhookBody(t, "payment.captured", "pay_123", map[string]string{
		"buyer_id": "not-a-uuid",
	})
	rec := postWebhook(router, body, signWebhook(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
