package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

// CreditStore is an in-memory credit ledger with the same guard
// semantics as the Postgres repository.
type CreditStore struct {
	mu      sync.Mutex
	credits map[uuid.UUID]*models.Credit
	byRef   map[string]uuid.UUID
	seq     int
}

func NewCreditStore() *CreditStore {
	return &CreditStore{
		credits: make(map[uuid.UUID]*models.Credit),
		byRef:   make(map[string]uuid.UUID),
	}
}

func (s *CreditStore) Create(_ context.Context, credit *models.Credit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[credit.PaymentRef]; exists {
		return false, nil
	}

	if credit.CreatedAt.IsZero() {
		// Preserve insertion order for FIFO selection.
		s.seq++
		credit.CreatedAt = time.Unix(int64(s.seq), 0)
	}

	clone := *credit
	s.credits[credit.ID] = &clone
	s.byRef[credit.PaymentRef] = credit.ID
	return true, nil
}

func (s *CreditStore) GetByID(_ context.Context, id uuid.UUID) (*models.Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credit, ok := s.credits[id]
	if !ok {
		return nil, apperrors.ErrCreditNotFound
	}
	clone := *credit
	return &clone, nil
}

func (s *CreditStore) SelectConsumable(_ context.Context, buyerID, sellerID uuid.UUID, now time.Time) (*models.Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.Credit
	for _, credit := range s.credits {
		if credit.BuyerID == buyerID && credit.SellerID == sellerID && credit.Consumable(now) {
			candidates = append(candidates, credit)
		}
	}
	if len(candidates) == 0 {
		return nil, apperrors.ErrCreditExhausted
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	clone := *candidates[0]
	return &clone, nil
}

func (s *CreditStore) Finalize(_ context.Context, id uuid.UUID) error {
	return s.finalize(id)
}

func (s *CreditStore) finalize(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credit, ok := s.credits[id]
	if !ok {
		return apperrors.ErrCreditNotFound
	}
	if credit.UsedSessions >= credit.TotalSessions {
		return apperrors.ErrCreditExhausted
	}
	credit.UsedSessions++
	return nil
}
