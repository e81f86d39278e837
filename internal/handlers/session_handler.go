package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/dtos"
	"github.com/consultbridge/ConsultBridge-Backend/internal/middlewares"
	"github.com/consultbridge/ConsultBridge-Backend/internal/services"
)

type SessionHandler struct {
	orchestrator *services.SessionOrchestrator
	finalizer    *services.SessionFinalizer
	access       *services.SessionAccess
	log          zerolog.Logger
}

func NewSessionHandler(
	orchestrator *services.SessionOrchestrator,
	finalizer *services.SessionFinalizer,
	access *services.SessionAccess,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		orchestrator: orchestrator,
		finalizer:    finalizer,
		access:       access,
		log:          log,
	}
}

// CreateSession provisions a session for a booking. Repeated calls for
// the same booking reference return the existing session.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dtos.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyerID, _ := uuid.Parse(req.BuyerID)
	sellerID, _ := uuid.Parse(req.SellerID)
	serviceID, _ := uuid.Parse(req.ServiceID)

	session, tokens, err := h.orchestrator.CreateSession(c.Request.Context(), services.CreateSessionInput{
		BookingRef:     req.BookingRef,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		ServiceID:      serviceID,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dtos.CreateSessionResponse{
		SessionID: session.ID,
		RoomTopic: session.RoomTopic,
		State:     string(session.State),
		Tokens:    tokens,
	})
}

// CreateFromBooking resolves the booking with the calendar provider
// and provisions a session from its payload.
func (h *SessionHandler) CreateFromBooking(c *gin.Context) {
	var req dtos.CreateFromBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serviceID, _ := uuid.Parse(req.ServiceID)

	session, tokens, err := h.orchestrator.CreateFromBookingRef(c.Request.Context(), req.BookingRef, serviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dtos.CreateSessionResponse{
		SessionID: session.ID,
		RoomTopic: session.RoomTopic,
		State:     string(session.State),
		Tokens:    tokens,
	})
}

// GetAccess returns the caller's room credential for a session,
// regenerating it when the cached one no longer validates.
func (h *SessionHandler) GetAccess(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	callerID, err := middlewares.CallerID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	info, err := h.access.Access(c.Request.Context(), sessionID, callerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.SessionAccessResponse{
		Token:     info.Token,
		Role:      info.Role,
		RoomTopic: info.RoomTopic,
		State:     string(info.State),
	})
}

// EndSession force-ends a session. A second end on an already finished
// session is reported as success with the terminal state: the core
// treats it as an error, the API boundary treats it as a no-op.
func (h *SessionHandler) EndSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	callerID, err := middlewares.CallerID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req dtos.EndSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.finalizer.End(c.Request.Context(), sessionID, callerID, req.ActualDurationSecs, req.ParticipantCount)
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyFinished) {
			session, getErr := h.orchestrator.GetSession(c.Request.Context(), sessionID)
			if getErr == nil {
				c.JSON(http.StatusOK, dtos.EndSessionResponse{
					State:              string(session.State),
					ActualDurationSecs: session.ActualDurationSecs,
				})
				return
			}
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.EndSessionResponse{
		State:              string(result.Session.State),
		ActualDurationSecs: result.ActualDurationSecs,
	})
}

// SessionEvent records intermediate join/leave events.
func (h *SessionHandler) SessionEvent(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	callerID, err := middlewares.CallerID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req dtos.SessionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Event {
	case "join":
		err = h.finalizer.RecordJoin(c.Request.Context(), sessionID)
	case "leave":
		err = h.finalizer.RecordLeave(c.Request.Context(), sessionID)
	}
	if err == nil && req.ParticipantCount != nil {
		err = h.finalizer.Update(c.Request.Context(), sessionID, callerID, map[string]interface{}{
			"participant_count": *req.ParticipantCount,
		})
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// writeError maps the error taxonomy onto HTTP responses. Provider
// details are logged server-side and replaced with a generic message.
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrCreditExhausted):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "no session credits remaining, please purchase a package"})
	case errors.Is(err, apperrors.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, apperrors.ErrNotHost):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrAlreadyFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "session already finished"})
	case apperrors.IsProvider(err):
		h.log.Error().Err(err).Msg("provider call failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream provider unavailable, please try again"})
	default:
		h.log.Error().Err(err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
