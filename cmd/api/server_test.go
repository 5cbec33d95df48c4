package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procco/auth"
	"procco/match"
	"procco/offer"
	"procco/request"
	"procco/view"
)

type stubAuthService struct {
	registerUser *auth.User
	registerErr  error
	loginResult  auth.LoginResult
	loginErr     error
	verifyUserID string
	verifyRole   auth.Role
	verifyErr    error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.loginResult, s.loginErr
}

func (s *stubAuthService) VerifyToken(_ string) (string, auth.Role, error) {
	return s.verifyUserID, s.verifyRole, s.verifyErr
}

type stubRequestService struct {
	created   request.Request
	createErr error
	mine      []request.Request
	open      []request.Request
	listErr   error
	deleteErr error

	lastCreate request.CreateParams
}

func (s *stubRequestService) Create(_ context.Context, params request.CreateParams) (request.Request, error) {
	s.lastCreate = params
	return s.created, s.createErr
}

func (s *stubRequestService) ListByOwner(_ context.Context, _ string) ([]request.Request, error) {
	return s.mine, s.listErr
}

func (s *stubRequestService) ListOpen(_ context.Context) ([]request.Request, error) {
	return s.open, s.listErr
}

func (s *stubRequestService) Delete(_ context.Context, _, _ string) error {
	return s.deleteErr
}

type stubOfferService struct {
	submitted  offer.Offer
	submitErr  error
	offers     []offer.Offer
	listErr    error
	lastSubmit offer.SubmitParams
}

func (s *stubOfferService) Submit(_ context.Context, params offer.SubmitParams) (offer.Offer, error) {
	s.lastSubmit = params
	return s.submitted, s.submitErr
}

func (s *stubOfferService) ListByRequest(_ context.Context, _ string) ([]offer.Offer, error) {
	return s.offers, s.listErr
}

type stubMatchService struct {
	result     match.AcceptResult
	err        error
	lastParams match.AcceptParams
}

func (s *stubMatchService) AcceptOffer(_ context.Context, params match.AcceptParams) (match.AcceptResult, error) {
	s.lastParams = params
	return s.result, s.err
}

type stubViewService struct {
	rows    []view.RequestWithOffers
	feed    []request.Request
	rowsErr error
	feedErr error
}

func (s *stubViewService) BuyerView(_ context.Context, _ string) ([]view.RequestWithOffers, error) {
	return s.rows, s.rowsErr
}

func (s *stubViewService) SellerFeed(_ context.Context, _ string) ([]request.Request, error) {
	return s.feed, s.feedErr
}

func asUser(req *http.Request, userID string, role auth.Role) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return req.WithContext(ctx)
}

func TestHandleCreateServiceRequest_Success(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	stub := &stubRequestService{
		created: request.Request{
			ID:        "req-1",
			OwnerID:   "buyer-1",
			Title:     "Fix leaking roof",
			Category:  "construction",
			Budget:    "2000-3000 EUR",
			Deadline:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			Status:    request.StatusOpen,
			CreatedAt: now,
		},
	}
	server := &Server{requestService: stub}

	body := strings.NewReader(`{"title":"Fix leaking roof","description":"Tiles slipped","category":"construction","budget":"2000-3000 EUR","deadline":"2026-04-01","location":"Tallinn"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests", body), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequests(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastCreate.OwnerID != "buyer-1" {
		t.Fatalf("expected owner from context, got %q", stub.lastCreate.OwnerID)
	}
	if !stub.lastCreate.Deadline.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected deadline: %v", stub.lastCreate.Deadline)
	}

	var resp requestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "req-1" || resp.Status != "open" || resp.Deadline != "2026-04-01" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.CreatedAt != now.Format(time.RFC3339) {
		t.Fatalf("expected createdAt %s, got %s", now.Format(time.RFC3339), resp.CreatedAt)
	}
}

func TestHandleCreateServiceRequest_SellerForbidden(t *testing.T) {
	server := &Server{requestService: &stubRequestService{}}

	body := strings.NewReader(`{"title":"x"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests", body), "seller-1", auth.RoleSeller)
	rec := httptest.NewRecorder()

	server.handleServiceRequests(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleCreateServiceRequest_ValidationError(t *testing.T) {
	server := &Server{requestService: &stubRequestService{
		createErr: request.ErrInvalidInput,
	}}

	body := strings.NewReader(`{"title":"","deadline":"2026-04-01"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests", body), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequests(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleServiceRequests_ListMine(t *testing.T) {
	server := &Server{requestService: &stubRequestService{
		mine: []request.Request{
			{ID: "req-1", OwnerID: "buyer-1", Status: request.StatusOpen},
			{ID: "req-2", OwnerID: "buyer-1", Status: request.StatusClosed},
		},
	}}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/service-requests", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequests(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []requestResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].ID != "req-1" || payload.Items[1].Status != "closed" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleServiceRequests_ListOpen(t *testing.T) {
	server := &Server{requestService: &stubRequestService{
		open: []request.Request{{ID: "req-3", Status: request.StatusOpen}},
	}}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/service-requests?open=true", nil), "seller-1", auth.RoleSeller)
	rec := httptest.NewRecorder()

	server.handleServiceRequests(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []requestResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "req-3" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleServiceRequestDetail_OpenListing(t *testing.T) {
	server := &Server{requestService: &stubRequestService{
		open: []request.Request{{ID: "req-9", Status: request.StatusOpen}},
	}}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/service-requests/open", nil), "seller-1", auth.RoleSeller)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []requestResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "req-9" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleDeleteServiceRequest_ConflictWithOffers(t *testing.T) {
	server := &Server{requestService: &stubRequestService{
		deleteErr: request.ErrHasOffers,
	}}

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/service-requests/req-1", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleDeleteServiceRequest_NotOwner(t *testing.T) {
	server := &Server{requestService: &stubRequestService{
		deleteErr: request.ErrForbidden,
	}}

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/service-requests/req-1", nil), "buyer-2", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleDeleteServiceRequest_Success(t *testing.T) {
	server := &Server{requestService: &stubRequestService{}}

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/service-requests/req-1", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHandleSubmitOffer_Success(t *testing.T) {
	stub := &stubOfferService{
		submitted: offer.Offer{
			ID:        "off-1",
			RequestID: "req-1",
			SellerID:  "seller-1",
			Price:     1500,
			Status:    offer.StatusPending,
			CreatedAt: time.Now().UTC(),
		},
	}
	server := &Server{offerService: stub}

	body := strings.NewReader(`{"price":1500,"comment":"Can start Monday"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers", body), "seller-1", auth.RoleSeller)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastSubmit.RequestID != "req-1" || stub.lastSubmit.SellerID != "seller-1" {
		t.Fatalf("unexpected submit params: %+v", stub.lastSubmit)
	}

	var resp offerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "off-1" || resp.Status != "pending" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleSubmitOffer_BuyerForbidden(t *testing.T) {
	server := &Server{offerService: &stubOfferService{}}

	body := strings.NewReader(`{"price":1500}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers", body), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleSubmitOffer_ClosedRequestConflicts(t *testing.T) {
	server := &Server{offerService: &stubOfferService{
		submitErr: offer.ErrRequestClosed,
	}}

	body := strings.NewReader(`{"price":900}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers", body), "seller-1", auth.RoleSeller)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleAcceptOffer_Success(t *testing.T) {
	stub := &stubMatchService{
		result: match.AcceptResult{
			Request: request.Request{ID: "req-1", OwnerID: "buyer-1", Status: request.StatusClosed},
			Offers: []offer.Offer{
				{ID: "off-1", RequestID: "req-1", Status: offer.StatusAccepted},
				{ID: "off-2", RequestID: "req-1", Status: offer.StatusRejected},
			},
		},
	}
	server := &Server{matchService: stub}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers/off-1/accept", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastParams.RequestID != "req-1" || stub.lastParams.OfferID != "off-1" || stub.lastParams.RequesterID != "buyer-1" {
		t.Fatalf("unexpected accept params: %+v", stub.lastParams)
	}

	var resp acceptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Request.Status != "closed" {
		t.Fatalf("expected closed request, got %q", resp.Request.Status)
	}
	if len(resp.Offers) != 2 || resp.Offers[0].Status != "accepted" || resp.Offers[1].Status != "rejected" {
		t.Fatalf("unexpected offers payload: %+v", resp.Offers)
	}
}

func TestHandleAcceptOffer_NotOwner(t *testing.T) {
	server := &Server{matchService: &stubMatchService{
		err: match.ErrNotOwner,
	}}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers/off-1/accept", nil), "buyer-2", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleAcceptOffer_AlreadyClosed(t *testing.T) {
	server := &Server{matchService: &stubMatchService{
		err: match.ErrRequestClosed,
	}}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers/off-2/accept", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleAcceptOffer_OfferNotFound(t *testing.T) {
	server := &Server{matchService: &stubMatchService{
		err: match.ErrOfferNotFound,
	}}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/service-requests/req-1/offers/missing/accept", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleServiceRequestDetail_UnknownRoute(t *testing.T) {
	server := &Server{}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/service-requests/req-1/bids", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleServiceRequestDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleFeed_SellerOnly(t *testing.T) {
	server := &Server{viewService: &stubViewService{
		feed: []request.Request{{ID: "req-1", Status: request.StatusOpen}},
	}}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleFeed(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer, got %d", rec.Code)
	}

	req = asUser(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "seller-1", auth.RoleSeller)
	rec = httptest.NewRecorder()

	server.handleFeed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for seller, got %d", rec.Code)
	}

	var payload struct {
		Items []requestResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "req-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleDashboard_GroupsOffers(t *testing.T) {
	server := &Server{viewService: &stubViewService{
		rows: []view.RequestWithOffers{
			{
				Request: request.Request{ID: "req-1", OwnerID: "buyer-1", Status: request.StatusClosed},
				Offers: []offer.Offer{
					{ID: "off-1", RequestID: "req-1", Status: offer.StatusAccepted},
					{ID: "off-2", RequestID: "req-1", Status: offer.StatusRejected},
				},
			},
			{
				Request: request.Request{ID: "req-2", OwnerID: "buyer-1", Status: request.StatusOpen},
			},
		},
	}}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), "buyer-1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleDashboard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []requestWithOffersResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 2 {
		t.Fatalf("expected 2 dashboard rows, got %d", len(payload.Items))
	}
	if len(payload.Items[0].Offers) != 2 || len(payload.Items[1].Offers) != 0 {
		t.Fatalf("unexpected offer grouping: %+v", payload.Items)
	}
}

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	server := &Server{authService: &stubAuthService{}}

	called := false
	handler := server.requireAuth(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/service-requests", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without a token")
	}
}

func TestRequireAuth_PropagatesIdentity(t *testing.T) {
	server := &Server{authService: &stubAuthService{
		verifyUserID: "seller-1",
		verifyRole:   auth.RoleSeller,
	}}

	var gotID string
	var gotRole auth.Role
	handler := server.requireAuth(func(_ http.ResponseWriter, r *http.Request) {
		gotID, _ = r.Context().Value(ctxKeyUserID).(string)
		gotRole, _ = r.Context().Value(ctxKeyRole).(auth.Role)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if gotID != "seller-1" || gotRole != auth.RoleSeller {
		t.Fatalf("identity not propagated: id=%q role=%q", gotID, gotRole)
	}
}

func TestRequireAuth_RejectsBadToken(t *testing.T) {
	server := &Server{authService: &stubAuthService{
		verifyErr: errors.New("token is expired"),
	}}

	handler := server.requireAuth(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with a bad token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleRegister_DuplicateUsername(t *testing.T) {
	server := &Server{authService: &stubAuthService{
		registerErr: auth.ErrDuplicateUsername,
	}}

	body := strings.NewReader(`{"username":"taken","password":"longenough","fullName":"Some One","role":"seller"}`)
	req := httptest.NewRequest(http.MethodPost, "/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleRegister_ReturnsToken(t *testing.T) {
	user := auth.User{ID: "u-1", Username: "mari", FullName: "Mari Maasikas", Role: auth.RoleBuyer}
	server := &Server{authService: &stubAuthService{
		registerUser: &user,
		loginResult:  auth.LoginResult{Token: "jwt-token", User: user},
	}}

	body := strings.NewReader(`{"username":"mari","password":"longenough","fullName":"Mari Maasikas"}`)
	req := httptest.NewRequest(http.MethodPost, "/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token != "jwt-token" || resp.User.Username != "mari" || resp.User.Role != "buyer" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	server := &Server{authService: &stubAuthService{
		loginErr: auth.ErrInvalidCredentials,
	}}

	body := strings.NewReader(`{"username":"mari","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	rec := httptest.NewRecorder()

	server.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
