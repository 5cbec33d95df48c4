package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"procco/offer"
	"procco/request"
)

// PGRepository implements Repository on top of the caller's pgx transaction,
// mirroring the schema owned by the request and offer packages.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) LockRequest(ctx context.Context, tx pgx.Tx, requestID string) (request.Request, error) {
	const query = `
		SELECT id, owner_id, title, description, category, budget, deadline, location, status, created_at, updated_at
		FROM service_requests
		WHERE id = $1
		FOR UPDATE
	`

	var req request.Request
	err := tx.QueryRow(ctx, query, requestID).Scan(
		&req.ID,
		&req.OwnerID,
		&req.Title,
		&req.Description,
		&req.Category,
		&req.Budget,
		&req.Deadline,
		&req.Location,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return request.Request{}, ErrRequestNotFound
		}
		return request.Request{}, fmt.Errorf("match: lock request: %w", err)
	}
	return req, nil
}

func (r *PGRepository) GetOffer(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, error) {
	const query = `
		SELECT id, request_id, seller_id, price, comment, status, created_at
		FROM offers
		WHERE id = $1
	`

	var o offer.Offer
	err := tx.QueryRow(ctx, query, offerID).Scan(
		&o.ID,
		&o.RequestID,
		&o.SellerID,
		&o.Price,
		&o.Comment,
		&o.Status,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offer.Offer{}, ErrOfferNotFound
		}
		return offer.Offer{}, fmt.Errorf("match: get offer: %w", err)
	}
	return o, nil
}

func (r *PGRepository) MarkAccepted(ctx context.Context, tx pgx.Tx, offerID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE offers
		SET status = 'accepted'
		WHERE id = $1 AND status = 'pending'
	`, offerID)
	if err != nil {
		return fmt.Errorf("match: mark accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOfferDecided
	}
	return nil
}

func (r *PGRepository) RejectPendingSiblings(ctx context.Context, tx pgx.Tx, requestID, acceptedOfferID string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE offers
		SET status = 'rejected'
		WHERE request_id = $1 AND id <> $2 AND status = 'pending'
	`, requestID, acceptedOfferID); err != nil {
		return fmt.Errorf("match: reject siblings: %w", err)
	}
	return nil
}

func (r *PGRepository) CloseRequest(ctx context.Context, tx pgx.Tx, requestID string) (request.Request, error) {
	const query = `
		UPDATE service_requests
		SET status = 'closed',
		    updated_at = now()
		WHERE id = $1
		RETURNING id, owner_id, title, description, category, budget, deadline, location, status, created_at, updated_at
	`

	var req request.Request
	err := tx.QueryRow(ctx, query, requestID).Scan(
		&req.ID,
		&req.OwnerID,
		&req.Title,
		&req.Description,
		&req.Category,
		&req.Budget,
		&req.Deadline,
		&req.Location,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return request.Request{}, fmt.Errorf("match: close request: %w", err)
	}
	return req, nil
}

func (r *PGRepository) ListOffers(ctx context.Context, tx pgx.Tx, requestID string) ([]offer.Offer, error) {
	const query = `
		SELECT id, request_id, seller_id, price, comment, status, created_at
		FROM offers
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := tx.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("match: list offers: %w", err)
	}
	defer rows.Close()

	out := []offer.Offer{}
	for rows.Next() {
		var o offer.Offer
		if err := rows.Scan(&o.ID, &o.RequestID, &o.SellerID, &o.Price, &o.Comment, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("match: scan offer: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match: iterate offers: %w", err)
	}
	return out, nil
}
