package view

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"procco/offer"
	"procco/request"
)

// PGRepository implements ProjectionReader backed by PostgreSQL. Each query
// reads a single consistent snapshot; a half-applied acceptance cascade is
// never observable.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) RequestsWithOffers(ctx context.Context, ownerID string) ([]RequestWithOffers, error) {
	const query = `
		SELECT r.id, r.owner_id, r.title, r.description, r.category, r.budget, r.deadline, r.location, r.status, r.created_at, r.updated_at,
		       o.id, o.seller_id, o.price, o.comment, o.status, o.created_at
		FROM service_requests r
		LEFT JOIN offers o ON o.request_id = r.id
		WHERE r.owner_id = $1
		ORDER BY r.created_at ASC, r.id ASC, o.created_at ASC, o.id ASC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("view: buyer projection: %w", err)
	}
	defer rows.Close()

	out := []RequestWithOffers{}
	index := map[string]int{}
	for rows.Next() {
		var (
			req        request.Request
			offerID    *string
			sellerID   *string
			price      *float64
			comment    *string
			status     *offer.Status
			oCreatedAt *time.Time
		)
		err := rows.Scan(
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
			&offerID,
			&sellerID,
			&price,
			&comment,
			&status,
			&oCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("view: scan buyer row: %w", err)
		}

		pos, seen := index[req.ID]
		if !seen {
			out = append(out, RequestWithOffers{Request: req, Offers: []offer.Offer{}})
			pos = len(out) - 1
			index[req.ID] = pos
		}

		if offerID != nil {
			o := offer.Offer{
				ID:        *offerID,
				RequestID: req.ID,
				SellerID:  *sellerID,
				Price:     *price,
				Status:    *status,
				CreatedAt: *oCreatedAt,
			}
			if comment != nil {
				o.Comment = *comment
			}
			out[pos].Offers = append(out[pos].Offers, o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("view: iterate buyer rows: %w", err)
	}
	return out, nil
}

func (r *PGRepository) OpenRequests(ctx context.Context) ([]request.Request, error) {
	const query = `
		SELECT id, owner_id, title, description, category, budget, deadline, location, status, created_at, updated_at
		FROM service_requests
		WHERE status = 'open'
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("view: open requests: %w", err)
	}
	defer rows.Close()

	out := []request.Request{}
	for rows.Next() {
		var req request.Request
		if err := rows.Scan(
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
		); err != nil {
			return nil, fmt.Errorf("view: scan open request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("view: iterate open requests: %w", err)
	}
	return out, nil
}
