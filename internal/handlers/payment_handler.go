package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go/utils"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/services"
)

// PaymentHandler takes captured-payment webhooks from the payment
// provider and mints session credits from them. This is the only
// producer of Credit rows.
type PaymentHandler struct {
	credits       services.CreditStore
	webhookSecret string
	log           zerolog.Logger
}

func NewPaymentHandler(credits services.CreditStore, webhookSecret string, log zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{credits: credits, webhookSecret: webhookSecret, log: log}
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID    string            `json:"id"`
				Notes map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// RazorpayWebhook verifies the webhook signature and records the
// purchased credit. Replays of the same payment are absorbed by the
// unique payment reference.
func (h *PaymentHandler) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if signature == "" || !razorpay.VerifyWebhookSignature(string(body), signature, h.webhookSecret) {
		h.log.Warn().Msg("razorpay webhook with missing or invalid signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event razorpayWebhook
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if event.Event != "payment.captured" {
		c.JSON(http.StatusOK, gin.H{"ignored": event.Event})
		return
	}

	credit, err := h.creditFromNotes(event.Payload.Payment.Entity.ID, event.Payload.Payment.Entity.Notes)
	if err != nil {
		h.log.Warn().Err(err).Str("payment", event.Payload.Payment.Entity.ID).Msg("webhook payment notes unusable")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	inserted, err := h.credits.Create(ctx, credit)
	if err != nil {
		h.log.Error().Err(err).Str("payment", credit.PaymentRef).Msg("failed to record credit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if !inserted {
		h.log.Info().Str("payment", credit.PaymentRef).Msg("webhook replay, credit already recorded")
	}

	c.JSON(http.StatusOK, gin.H{"recorded": inserted})
}

func (h *PaymentHandler) creditFromNotes(paymentID string, notes map[string]string) (*models.Credit, error) {
	buyerID, err := uuid.Parse(notes["buyer_id"])
	if err != nil {
		return nil, errMissingNote("buyer_id")
	}
	sellerID, err := uuid.Parse(notes["seller_id"])
	if err != nil {
		return nil, errMissingNote("seller_id")
	}
	total, err := strconv.Atoi(notes["total_sessions"])
	if err != nil || total <= 0 {
		return nil, errMissingNote("total_sessions")
	}

	credit := &models.Credit{
		ID:            uuid.New(),
		BuyerID:       buyerID,
		SellerID:      sellerID,
		PaymentRef:    paymentID,
		TotalSessions: total,
	}

	if raw := notes["expires_at"]; raw != "" {
		expires, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errMissingNote("expires_at")
		}
		credit.ExpiresAt = &expires
	}

	return credit, nil
}

type noteError string

func (e noteError) Error() string { return "missing or invalid payment note: " + string(e) }

func errMissingNote(name string) error { return noteError(name) }
