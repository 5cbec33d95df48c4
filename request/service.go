package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrInvalidInput signals malformed or missing creation fields.
	ErrInvalidInput = errors.New("request: invalid input")
	// ErrForbidden signals the actor does not own the request.
	ErrForbidden = errors.New("request: forbidden")
	// ErrHasOffers signals deletion was refused because offers reference the request.
	ErrHasOffers = errors.New("request: offers exist")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service struct {
	pool  TxBeginner
	repo  Repository
	idGen func() string
	now   func() time.Time
}

type CreateParams struct {
	OwnerID     string
	Title       string
	Description string
	Category    string
	Budget      string
	Deadline    time.Time
	Location    string
}

func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates and persists a new open request on behalf of a buyer.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if params.OwnerID == "" {
		return Request{}, fmt.Errorf("%w: owner id required", ErrInvalidInput)
	}
	for field, value := range map[string]string{
		"title":       params.Title,
		"description": params.Description,
		"category":    params.Category,
		"budget":      params.Budget,
		"location":    params.Location,
	} {
		if strings.TrimSpace(value) == "" {
			return Request{}, fmt.Errorf("%w: %s required", ErrInvalidInput, field)
		}
	}
	if params.Deadline.IsZero() {
		return Request{}, fmt.Errorf("%w: deadline required", ErrInvalidInput)
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if params.Deadline.UTC().Truncate(24 * time.Hour).Before(today) {
		return Request{}, fmt.Errorf("%w: deadline in the past", ErrInvalidInput)
	}

	req := Request{
		ID:          s.idGen(),
		OwnerID:     params.OwnerID,
		Title:       strings.TrimSpace(params.Title),
		Description: strings.TrimSpace(params.Description),
		Category:    strings.TrimSpace(params.Category),
		Budget:      strings.TrimSpace(params.Budget),
		Deadline:    params.Deadline,
		Location:    strings.TrimSpace(params.Location),
		Status:      StatusOpen,
	}

	return s.repo.Create(ctx, req)
}

func (s *Service) GetByID(ctx context.Context, id string) (Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Request, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *Service) ListOpen(ctx context.Context) ([]Request, error) {
	return s.repo.ListOpen(ctx)
}

// Delete removes a request owned by requesterID. Requests that have collected
// offers are never deleted so offer history keeps a valid parent.
func (s *Service) Delete(ctx context.Context, id, requesterID string) error {
	if id == "" || requesterID == "" {
		return fmt.Errorf("%w: id and requester id required", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("request: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if req.OwnerID != requesterID {
		return ErrForbidden
	}

	count, err := s.repo.OfferCount(ctx, tx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrHasOffers
	}

	if err := s.repo.Delete(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("request: commit delete: %w", err)
	}
	return nil
}
