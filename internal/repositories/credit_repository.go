package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Create inserts a purchased credit. Webhook replays carrying the same
// payment reference are ignored; the bool reports whether a row landed.
func (r *CreditRepository) Create(ctx context.Context, credit *models.Credit) (bool, error) {
	const query = `
	INSERT INTO credits (
		id,
		buyer_id,
		seller_id,
		payment_ref,
		total_sessions,
		used_sessions,
		expires_at,
		created_at
	)
	VALUES ($1, $2, $3, $4, $5, 0, $6, NOW())
	ON CONFLICT (payment_ref) DO NOTHING
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		credit.ID,
		credit.BuyerID,
		credit.SellerID,
		credit.PaymentRef,
		credit.TotalSessions,
		credit.ExpiresAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *CreditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Credit, error) {
	const query = `
	SELECT id, buyer_id, seller_id, payment_ref, total_sessions, used_sessions, expires_at, created_at
	FROM credits
	WHERE id = $1
	LIMIT 1
	`

	var credit models.Credit
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&credit.ID,
		&credit.BuyerID,
		&credit.SellerID,
		&credit.PaymentRef,
		&credit.TotalSessions,
		&credit.UsedSessions,
		&credit.ExpiresAt,
		&credit.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrCreditNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

// SelectConsumable returns the oldest credit for the pair that can
// still back a session, establishing FIFO consumption order.
func (r *CreditRepository) SelectConsumable(ctx context.Context, buyerID, sellerID uuid.UUID, now time.Time) (*models.Credit, error) {
	const query = `
	SELECT id, buyer_id, seller_id, payment_ref, total_sessions, used_sessions, expires_at, created_at
	FROM credits
	WHERE buyer_id = $1
	  AND seller_id = $2
	  AND used_sessions < total_sessions
	  AND (expires_at IS NULL OR expires_at > $3)
	ORDER BY created_at ASC
	LIMIT 1
	`

	var credit models.Credit
	err := r.db.QueryRowContext(ctx, query, buyerID, sellerID, now).Scan(
		&credit.ID,
		&credit.BuyerID,
		&credit.SellerID,
		&credit.PaymentRef,
		&credit.TotalSessions,
		&credit.UsedSessions,
		&credit.ExpiresAt,
		&credit.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrCreditExhausted
	}
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

// Finalize increments consumption by exactly one. The used < total
// guard makes an over-consume a hard error instead of a silent clamp;
// hitting it means a credit was double-bound upstream.
// Session completion runs this same increment inside the
// CompleteWithCredit transaction; Finalize is the standalone entry for
// consumption outside that path (manual corrections, backfill tooling).
func (r *CreditRepository) Finalize(ctx context.Context, id uuid.UUID) error {
	const query = `
	UPDATE credits
	SET used_sessions = used_sessions + 1
	WHERE id = $1 AND used_sessions < total_sessions
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrCreditExhausted
	}
	return nil
}
