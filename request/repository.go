package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no request row exists for the identifier.
	ErrNotFound = errors.New("request: not found")
)

type Repository interface {
	Create(ctx context.Context, req Request) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Request, error)
	ListOpen(ctx context.Context) ([]Request, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	OfferCount(ctx context.Context, tx pgx.Tx, id string) (int, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, owner_id, title, description, category, budget, deadline, location, status, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, req Request) (Request, error) {
	const query = `
		INSERT INTO service_requests (id, owner_id, title, description, category, budget, deadline, location, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + requestColumns

	row := r.pool.QueryRow(ctx, query,
		req.ID,
		req.OwnerID,
		req.Title,
		req.Description,
		req.Category,
		req.Budget,
		req.Deadline,
		req.Location,
		req.Status,
	)

	created, err := scanRequest(row)
	if err != nil {
		return Request{}, fmt.Errorf("request: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Request, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM service_requests
		WHERE id = $1
	`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: get by id: %w", err)
	}
	return req, nil
}

func (r *PGRepository) ListByOwner(ctx context.Context, ownerID string) ([]Request, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM service_requests
		WHERE owner_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("request: list by owner: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *PGRepository) ListOpen(ctx context.Context) ([]Request, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM service_requests
		WHERE status = 'open'
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("request: list open: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// GetForUpdate loads a request inside the caller's transaction holding a row
// lock so concurrent lifecycle transitions serialize on the request.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM service_requests
		WHERE id = $1
		FOR UPDATE
	`

	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: get for update: %w", err)
	}
	return req, nil
}

func (r *PGRepository) OfferCount(ctx context.Context, tx pgx.Tx, id string) (int, error) {
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM offers WHERE request_id = $1`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("request: count offers: %w", err)
	}
	return count, nil
}

func (r *PGRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM service_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("request: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
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
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	list := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("request: scan: %w", err)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("request: iterate: %w", err)
	}
	return list, nil
}
