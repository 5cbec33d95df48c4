// Package match ties the request store and offer ledger together: accepting
// an offer closes the parent request and cascade-rejects every sibling in one
// transaction.
package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"procco/offer"
	"procco/request"
)

var (
	// ErrRequestNotFound signals the request to accept against does not exist.
	ErrRequestNotFound = errors.New("match: request not found")
	// ErrOfferNotFound signals the offer does not exist under the request.
	ErrOfferNotFound = errors.New("match: offer not found")
	// ErrNotOwner signals the actor is not the buyer who posted the request.
	ErrNotOwner = errors.New("match: not request owner")
	// ErrRequestClosed signals the request was already decided.
	ErrRequestClosed = errors.New("match: request closed")
	// ErrOfferDecided signals the target offer is no longer pending.
	ErrOfferDecided = errors.New("match: offer already decided")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the transactional data access the engine needs. Every
// method runs inside the caller's transaction.
type Repository interface {
	LockRequest(ctx context.Context, tx pgx.Tx, requestID string) (request.Request, error)
	GetOffer(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, error)
	MarkAccepted(ctx context.Context, tx pgx.Tx, offerID string) error
	RejectPendingSiblings(ctx context.Context, tx pgx.Tx, requestID, acceptedOfferID string) error
	CloseRequest(ctx context.Context, tx pgx.Tx, requestID string) (request.Request, error)
	ListOffers(ctx context.Context, tx pgx.Tx, requestID string) ([]offer.Offer, error)
}

type Service struct {
	pool TxBeginner
	repo Repository
}

func NewService(pool TxBeginner, repo Repository) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool: pool,
		repo: repo,
	}
}

type AcceptParams struct {
	RequestID   string
	OfferID     string
	RequesterID string
}

// AcceptResult carries the closed request and its full offer set after a
// successful acceptance.
type AcceptResult struct {
	Request request.Request
	Offers  []offer.Offer
}

// AcceptOffer marks one pending offer accepted, rejects the remaining pending
// offers under the same request, and closes the request. The request row is
// locked up front, so concurrent acceptances on the same request serialize and
// every loser observes the closed status.
func (s *Service) AcceptOffer(ctx context.Context, params AcceptParams) (AcceptResult, error) {
	if params.RequestID == "" || params.OfferID == "" {
		return AcceptResult{}, fmt.Errorf("match: request id and offer id required")
	}
	if params.RequesterID == "" {
		return AcceptResult{}, fmt.Errorf("match: requester id required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("match: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.LockRequest(ctx, tx, params.RequestID)
	if err != nil {
		return AcceptResult{}, err
	}
	if req.OwnerID != params.RequesterID {
		return AcceptResult{}, ErrNotOwner
	}
	if req.Status != request.StatusOpen {
		return AcceptResult{}, ErrRequestClosed
	}

	target, err := s.repo.GetOffer(ctx, tx, params.OfferID)
	if err != nil {
		return AcceptResult{}, err
	}
	if target.RequestID != params.RequestID {
		return AcceptResult{}, ErrOfferNotFound
	}
	if target.Status != offer.StatusPending {
		return AcceptResult{}, ErrOfferDecided
	}

	if err := s.repo.MarkAccepted(ctx, tx, params.OfferID); err != nil {
		return AcceptResult{}, err
	}
	if err := s.repo.RejectPendingSiblings(ctx, tx, params.RequestID, params.OfferID); err != nil {
		return AcceptResult{}, err
	}

	closed, err := s.repo.CloseRequest(ctx, tx, params.RequestID)
	if err != nil {
		return AcceptResult{}, err
	}

	offers, err := s.repo.ListOffers(ctx, tx, params.RequestID)
	if err != nil {
		return AcceptResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AcceptResult{}, fmt.Errorf("match: commit acceptance: %w", err)
	}

	return AcceptResult{
		Request: closed,
		Offers:  offers,
	}, nil
}
