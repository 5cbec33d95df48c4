package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"procco/match"
	"procco/offer"
	"procco/request"
)

// Buyer keeps posting fresh service requests under its own account.
func Buyer(ctx context.Context, requests *request.Service, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := requests.Create(ctx, request.CreateParams{
			OwnerID:     buyerID,
			Title:       fmt.Sprintf("Job %d", rand.Int63()),
			Description: "stress workload",
			Category:    "construction",
			Budget:      "100-500 EUR",
			Deadline:    time.Now().UTC().Add(30 * 24 * time.Hour),
			Location:    "Tallinn",
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("buyer create: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// Seller picks a random open request and bids on it. Losing the race against a
// concurrent acceptance is expected under contention.
func Seller(ctx context.Context, pool *pgxpool.Pool, offers *offer.Service, sellerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var requestID string
		err := pool.QueryRow(ctx, `SELECT id FROM service_requests WHERE status='open' ORDER BY random() LIMIT 1`).Scan(&requestID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) && !tolerable(err) {
				return fmt.Errorf("seller pick request: %w", err)
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		_, err = offers.Submit(ctx, offer.SubmitParams{
			RequestID: requestID,
			SellerID:  sellerID,
			Price:     float64(50 + rand.Intn(950)),
			Comment:   "can do",
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("seller submit: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Accepter picks a random pending offer on one of the buyer's open requests and
// tries to accept it. Concurrent accepters racing on the same request must
// produce exactly one winner.
func Accepter(ctx context.Context, pool *pgxpool.Pool, matches *match.Service, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var offerID, requestID string
		err := pool.QueryRow(ctx, `SELECT o.id, o.request_id FROM offers o
                                   JOIN service_requests r ON r.id = o.request_id
                                   WHERE r.owner_id = $1 AND r.status = 'open' AND o.status = 'pending'
                                   ORDER BY random() LIMIT 1`, buyerID).Scan(&offerID, &requestID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) && !tolerable(err) {
				return fmt.Errorf("accepter pick offer: %w", err)
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		_, err = matches.AcceptOffer(ctx, match.AcceptParams{
			RequestID:   requestID,
			OfferID:     offerID,
			RequesterID: buyerID,
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("accepter accept: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(50)) * time.Millisecond)
	}
}

// Deleter tries to withdraw the buyer's open requests. Requests that already
// collected offers must survive the attempt.
func Deleter(ctx context.Context, pool *pgxpool.Pool, requests *request.Service, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var requestID string
		err := pool.QueryRow(ctx, `SELECT id FROM service_requests WHERE owner_id=$1 AND status='open' ORDER BY random() LIMIT 1`, buyerID).Scan(&requestID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) && !tolerable(err) {
				return fmt.Errorf("deleter pick request: %w", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err := requests.Delete(ctx, requestID, buyerID); err != nil && !tolerable(err) {
			return fmt.Errorf("deleter delete: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}

// tolerable reports whether an error is an expected outcome of contention
// rather than a correctness failure.
func tolerable(err error) bool {
	switch {
	case errors.Is(err, offer.ErrRequestClosed),
		errors.Is(err, offer.ErrRequestNotFound),
		errors.Is(err, match.ErrRequestClosed),
		errors.Is(err, match.ErrRequestNotFound),
		errors.Is(err, match.ErrOfferNotFound),
		errors.Is(err, match.ErrOfferDecided),
		errors.Is(err, request.ErrHasOffers),
		errors.Is(err, request.ErrNotFound):
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P01": // serialization failure, deadlock, admin shutdown
			return true
		}
	}

	// chaos terminates backends mid-flight
	msg := err.Error()
	for _, s := range []string{"conn closed", "connection reset", "unexpected EOF", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
