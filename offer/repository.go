package offer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no offer row exists for the identifier.
	ErrNotFound = errors.New("offer: not found")
	// ErrRequestNotFound signals the parent request does not exist.
	ErrRequestNotFound = errors.New("offer: request not found")
)

type Repository interface {
	LockRequestStatus(ctx context.Context, tx pgx.Tx, requestID string) (string, error)
	Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	ListByRequest(ctx context.Context, requestID string) ([]Offer, error)
	GetByID(ctx context.Context, id string) (Offer, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const offerColumns = `id, request_id, seller_id, price, comment, status, created_at`

// LockRequestStatus takes a share lock on the parent request row so offer
// creation serializes against a concurrent acceptance closing the request.
func (r *PGRepository) LockRequestStatus(ctx context.Context, tx pgx.Tx, requestID string) (string, error) {
	const query = `
		SELECT status::text
		FROM service_requests
		WHERE id = $1
		FOR SHARE
	`

	var status string
	if err := tx.QueryRow(ctx, query, requestID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRequestNotFound
		}
		return "", fmt.Errorf("offer: lock request: %w", err)
	}
	return status, nil
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	const query = `
		INSERT INTO offers (id, request_id, seller_id, price, comment, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		RETURNING ` + offerColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.RequestID,
		o.SellerID,
		o.Price,
		o.Comment,
		o.Status,
	)

	created, err := scanOffer(row)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) ListByRequest(ctx context.Context, requestID string) ([]Offer, error) {
	const query = `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("offer: list by request: %w", err)
	}
	defer rows.Close()

	out := []Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("offer: scan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("offer: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Offer, error) {
	const query = `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE id = $1
	`

	o, err := scanOffer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: get by id: %w", err)
	}
	return o, nil
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	return o, row.Scan(
		&o.ID,
		&o.RequestID,
		&o.SellerID,
		&o.Price,
		&o.Comment,
		&o.Status,
		&o.CreatedAt,
	)
}
