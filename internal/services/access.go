package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
	"github.com/consultbridge/ConsultBridge-Backend/internal/token"
)

// AccessInfo is what a participant needs to join their room.
type AccessInfo struct {
	Token     string
	Role      int
	RoomTopic string
	State     models.SessionState
}

// SessionAccess serves per-participant room credentials from the cache
// on the session row, regenerating lazily whenever the cached token no
// longer validates. The cache is keyed by the full user id; the short
// identity lives only inside the token claims.
type SessionAccess struct {
	sessions SessionStore
	issuer   *token.Issuer
	log      zerolog.Logger
}

func NewSessionAccess(sessions SessionStore, issuer *token.Issuer, log zerolog.Logger) *SessionAccess {
	return &SessionAccess{sessions: sessions, issuer: issuer, log: log}
}

func (a *SessionAccess) Access(ctx context.Context, sessionID, callerID uuid.UUID) (*AccessInfo, error) {
	session, err := a.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.Participant(callerID) {
		return nil, apperrors.NewValidation("caller", "not a participant of this session")
	}

	role := session.RoleFor(callerID)
	key := callerID.String()

	if cached, ok := session.TokenCache[key]; ok && a.issuer.Validate(cached) {
		return &AccessInfo{Token: cached, Role: role, RoomTopic: session.RoomTopic, State: session.State}, nil
	}

	signed, err := a.issuer.Issue(session.RoomTopic, key, role)
	if err != nil {
		return nil, err
	}

	cache := session.TokenCache
	if cache == nil {
		cache = make(map[string]string, 2)
	}
	cache[key] = signed
	if err := a.sessions.SaveTokenCache(ctx, sessionID, cache); err != nil {
		// The caller still gets a valid token; only the cache write
		// failed, so the next read pays for a fresh issue.
		a.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to persist token cache")
	}

	return &AccessInfo{Token: signed, Role: role, RoomTopic: session.RoomTopic, State: session.State}, nil
}
