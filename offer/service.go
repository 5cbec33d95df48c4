package offer

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
	// ErrRequestClosed signals the parent request no longer accepts offers.
	ErrRequestClosed = errors.New("offer: request closed")
	// ErrInvalidPrice signals a non-positive offer price.
	ErrInvalidPrice = errors.New("offer: price must be positive")
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

type SubmitParams struct {
	RequestID string
	SellerID  string
	Price     float64
	Comment   string
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

// Submit records a pending offer against an open request. The parent request
// row is locked for the duration of the insert so a concurrent acceptance
// cannot close the request underneath the new offer.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Offer, error) {
	if params.RequestID == "" {
		return Offer{}, fmt.Errorf("offer: missing request id")
	}
	if params.SellerID == "" {
		return Offer{}, fmt.Errorf("offer: missing seller id")
	}
	if params.Price <= 0 {
		return Offer{}, ErrInvalidPrice
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := s.repo.LockRequestStatus(ctx, tx, params.RequestID)
	if err != nil {
		return Offer{}, err
	}
	if status != "open" {
		return Offer{}, ErrRequestClosed
	}

	created, err := s.repo.Create(ctx, tx, Offer{
		ID:        s.idGen(),
		RequestID: params.RequestID,
		SellerID:  params.SellerID,
		Price:     params.Price,
		Comment:   strings.TrimSpace(params.Comment),
		Status:    StatusPending,
	})
	if err != nil {
		return Offer{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: commit submit: %w", err)
	}

	return created, nil
}

func (s *Service) ListByRequest(ctx context.Context, requestID string) ([]Offer, error) {
	return s.repo.ListByRequest(ctx, requestID)
}

func (s *Service) GetByID(ctx context.Context, id string) (Offer, error) {
	return s.repo.GetByID(ctx, id)
}
