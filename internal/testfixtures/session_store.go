package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

// SessionStore is an in-memory stand-in for the Postgres session
// repository. It reproduces the repository's guard semantics (unique
// booking ref, conditional state transitions, atomic complete+credit)
// so lifecycle services can be tested without a database.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.ConsultingSession
	byRef    map[string]uuid.UUID
	credits  *CreditStore
}

// NewSessionStore builds a store. credits may be nil when the test
// never completes a session with a bound credit.
func NewSessionStore(credits *CreditStore) *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*models.ConsultingSession),
		byRef:    make(map[string]uuid.UUID),
		credits:  credits,
	}
}

func (s *SessionStore) Create(_ context.Context, session *models.ConsultingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[session.BookingRef]; exists {
		return apperrors.ErrDuplicateSession
	}

	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	s.sessions[session.ID] = cloneSession(session)
	s.byRef[session.BookingRef] = session.ID
	return nil
}

func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*models.ConsultingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) GetByBookingRef(_ context.Context, bookingRef string) (*models.ConsultingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[bookingRef]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

func (s *SessionStore) MarkInProgress(_ context.Context, id uuid.UUID, joinedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if session.State != models.SessionStateScheduled {
		return nil
	}
	session.State = models.SessionStateInProgress
	if session.JoinedAt == nil {
		at := joinedAt
		session.JoinedAt = &at
	}
	return nil
}

func (s *SessionStore) CompleteWithCredit(_ context.Context, id uuid.UUID, creditID *uuid.UUID, endedAt time.Time, durationSecs, participantCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if session.State.Terminal() {
		return apperrors.ErrAlreadyFinished
	}

	// Credit check happens before any mutation so a failure leaves the
	// session untouched, matching the transactional repository.
	if creditID != nil && s.credits != nil {
		if err := s.credits.finalize(*creditID); err != nil {
			return err
		}
	}

	session.State = models.SessionStateCompleted
	session.Finished = true
	at := endedAt
	session.EndedAt = &at
	session.ActualDurationSecs = durationSecs
	session.ParticipantCount = participantCount
	return nil
}

func (s *SessionStore) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if session.State.Terminal() {
		return apperrors.ErrAlreadyFinished
	}
	session.State = models.SessionStateCancelled
	return nil
}

func (s *SessionStore) SweepNoShows(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var moved int64
	for _, session := range s.sessions {
		if session.State == models.SessionStateScheduled &&
			session.ScheduledEnd.Before(cutoff) &&
			session.JoinedAt == nil {
			session.State = models.SessionStateNoShow
			moved++
		}
	}
	return moved, nil
}

func (s *SessionStore) ListNeedingRecording(_ context.Context, since time.Time) ([]*models.ConsultingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ConsultingSession
	for _, session := range s.sessions {
		if session.State != models.SessionStateCompleted {
			continue
		}
		if session.EndedAt == nil || session.EndedAt.Before(since) {
			continue
		}
		if session.RoomTopic == "" {
			continue
		}
		switch session.RecordingStatus {
		case models.RecordingStatusNone, models.RecordingStatusProcessing, models.RecordingStatusNotFound:
			out = append(out, cloneSession(session))
		}
	}
	return out, nil
}

func (s *SessionStore) ListClaimedRecordingIDs(_ context.Context, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, session := range s.sessions {
		if session.ProviderRecordingID == "" {
			continue
		}
		if session.RecordingStatus != models.RecordingStatusReady && session.RecordingStatus != models.RecordingStatusFailed {
			continue
		}
		if session.EndedAt == nil || session.EndedAt.Before(since) {
			continue
		}
		ids = append(ids, session.ProviderRecordingID)
	}
	return ids, nil
}

func (s *SessionStore) UpdateRecording(_ context.Context, id uuid.UUID, status models.RecordingStatus, recordingURL, providerRecordingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	session.RecordingStatus = status
	session.RecordingURL = recordingURL
	session.ProviderRecordingID = providerRecordingID
	return nil
}

func (s *SessionStore) SaveTokenCache(_ context.Context, id uuid.UUID, cache map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	session.TokenCache = cloneCache(cache)
	return nil
}

func (s *SessionStore) UpdatePartial(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}

	for column, value := range fields {
		switch column {
		case "joined_at":
			at := value.(time.Time)
			session.JoinedAt = &at
		case "left_at":
			at := value.(time.Time)
			session.LeftAt = &at
		case "participant_count":
			session.ParticipantCount = value.(int)
		default:
			return apperrors.NewValidation(column, "field may not be updated through this path")
		}
	}
	return nil
}

// Count reports how many sessions the store holds.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func cloneSession(session *models.ConsultingSession) *models.ConsultingSession {
	clone := *session
	clone.TokenCache = cloneCache(session.TokenCache)
	if session.CreditID != nil {
		id := *session.CreditID
		clone.CreditID = &id
	}
	return &clone
}

func cloneCache(cache map[string]string) map[string]string {
	if cache == nil {
		return nil
	}
	out := make(map[string]string, len(cache))
	for k, v := range cache {
		out[k] = v
	}
	return out
}
