package offer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestService_Submit(t *testing.T) {
	repo := newFakeRepo()
	repo.requestStatus["req-1"] = "open"
	pool := &fakePool{}
	svc := NewService(pool, repo).WithIDGenerator(func() string { return "offer-1" })

	created, err := svc.Submit(context.Background(), SubmitParams{
		RequestID: "req-1",
		SellerID:  "seller-1",
		Price:     1500,
		Comment:   "  can start next week  ",
	})
	if err != nil {
		t.Fatalf("submit: unexpected error: %v", err)
	}
	if created.ID != "offer-1" {
		t.Fatalf("expected generated id offer-1, got %q", created.ID)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected initial status pending, got %s", created.Status)
	}
	if created.Comment != "can start next week" {
		t.Fatalf("expected trimmed comment, got %q", created.Comment)
	}
	if !pool.tx.committed {
		t.Fatal("expected transaction commit")
	}
}

func TestService_SubmitInvalidPrice(t *testing.T) {
	repo := newFakeRepo()
	repo.requestStatus["req-1"] = "open"
	svc := NewService(&fakePool{}, repo)

	for _, price := range []float64{0, -10} {
		_, err := svc.Submit(context.Background(), SubmitParams{
			RequestID: "req-1",
			SellerID:  "seller-1",
			Price:     price,
		})
		if !errors.Is(err, ErrInvalidPrice) {
			t.Errorf("price %v: expected ErrInvalidPrice, got %v", price, err)
		}
	}
	if len(repo.offers) != 0 {
		t.Fatalf("expected no offers persisted, got %d", len(repo.offers))
	}
}

func TestService_SubmitUnknownRequest(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(&fakePool{}, repo)

	_, err := svc.Submit(context.Background(), SubmitParams{
		RequestID: "missing",
		SellerID:  "seller-1",
		Price:     100,
	})
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestService_SubmitClosedRequest(t *testing.T) {
	repo := newFakeRepo()
	repo.requestStatus["req-1"] = "closed"
	pool := &fakePool{}
	svc := NewService(pool, repo)

	_, err := svc.Submit(context.Background(), SubmitParams{
		RequestID: "req-1",
		SellerID:  "seller-1",
		Price:     100,
	})
	if !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("expected ErrRequestClosed, got %v", err)
	}
	if len(repo.offers) != 0 {
		t.Fatalf("ledger must be unchanged, got %d offers", len(repo.offers))
	}
	if pool.tx.committed {
		t.Fatal("expected no commit on refused submit")
	}
}

type fakeRepo struct {
	requestStatus map[string]string
	offers        map[string]Offer
	order         []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requestStatus: make(map[string]string),
		offers:        make(map[string]Offer),
	}
}

func (f *fakeRepo) LockRequestStatus(ctx context.Context, tx pgx.Tx, requestID string) (string, error) {
	status, ok := f.requestStatus[requestID]
	if !ok {
		return "", ErrRequestNotFound
	}
	return status, nil
}

func (f *fakeRepo) Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	o.CreatedAt = time.Now().UTC()
	f.offers[o.ID] = o
	f.order = append(f.order, o.ID)
	return o, nil
}

func (f *fakeRepo) ListByRequest(ctx context.Context, requestID string) ([]Offer, error) {
	out := []Offer{}
	for _, id := range f.order {
		if o := f.offers[id]; o.RequestID == requestID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (Offer, error) {
	o, ok := f.offers[id]
	if !ok {
		return Offer{}, ErrNotFound
	}
	return o, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
