// Package view exposes read-only projections composed from the request store
// and the offer ledger. Nothing here mutates state.
package view

import (
	"context"

	"procco/offer"
	"procco/request"
)

// RequestWithOffers pairs a request with its full offer set for the buyer's
// dashboard.
type RequestWithOffers struct {
	Request request.Request
	Offers  []offer.Offer
}

// ProjectionReader abstracts repository operations for the service.
type ProjectionReader interface {
	RequestsWithOffers(ctx context.Context, ownerID string) ([]RequestWithOffers, error)
	OpenRequests(ctx context.Context) ([]request.Request, error)
}

// Service exposes the derived read models.
type Service struct {
	repo ProjectionReader
}

func NewService(repo ProjectionReader) *Service {
	return &Service{repo: repo}
}

// BuyerView returns the owner's requests in insertion order, each with its
// offers nested in insertion order.
func (s *Service) BuyerView(ctx context.Context, ownerID string) ([]RequestWithOffers, error) {
	return s.repo.RequestsWithOffers(ctx, ownerID)
}

// SellerFeed returns every open request in insertion order. Requests the
// seller already offered on stay in the feed; resubmission is allowed.
func (s *Service) SellerFeed(ctx context.Context, sellerID string) ([]request.Request, error) {
	return s.repo.OpenRequests(ctx)
}
