package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"procco/auth"
	"procco/match"
	"procco/offer"
	"procco/request"
	"procco/view"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type requestService interface {
	Create(ctx context.Context, params request.CreateParams) (request.Request, error)
	ListByOwner(ctx context.Context, ownerID string) ([]request.Request, error)
	ListOpen(ctx context.Context) ([]request.Request, error)
	Delete(ctx context.Context, id, requesterID string) error
}

type offerService interface {
	Submit(ctx context.Context, params offer.SubmitParams) (offer.Offer, error)
	ListByRequest(ctx context.Context, requestID string) ([]offer.Offer, error)
}

type matchService interface {
	AcceptOffer(ctx context.Context, params match.AcceptParams) (match.AcceptResult, error)
}

type viewService interface {
	BuyerView(ctx context.Context, ownerID string) ([]view.RequestWithOffers, error)
	SellerFeed(ctx context.Context, sellerID string) ([]request.Request, error)
}

// Server wires the domain services to the HTTP surface.
type Server struct {
	authService    authService
	requestService requestService
	offerService   offerService
	matchService   matchService
	viewService    viewService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/api/service-requests", s.requireAuth(s.handleServiceRequests))
	mux.HandleFunc("/api/service-requests/", s.requireAuth(s.handleServiceRequestDetail))
	mux.HandleFunc("/api/feed", s.requireAuth(s.handleFeed))
	mux.HandleFunc("/api/dashboard", s.requireAuth(s.handleDashboard))
	return mux
}

// requireAuth verifies the bearer token and stashes the caller identity in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.authService.Login(r.Context(), auth.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: result.Token,
		User:  toUserResponse(*user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

func (s *Server) handleServiceRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("open") == "true" {
			list, err := s.requestService.ListOpen(r.Context())
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, listResponse[requestResponse]{Items: toRequestResponses(list)})
			return
		}

		ownerID, _ := r.Context().Value(ctxKeyUserID).(string)
		list, err := s.requestService.ListByOwner(r.Context(), ownerID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[requestResponse]{Items: toRequestResponses(list)})

	case http.MethodPost:
		s.handleCreateServiceRequest(w, r)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createRequestPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Budget      string `json:"budget"`
	Deadline    string `json:"deadline"`
	Location    string `json:"location"`
}

func (s *Server) handleCreateServiceRequest(w http.ResponseWriter, r *http.Request) {
	if role, _ := r.Context().Value(ctxKeyRole).(auth.Role); role != auth.RoleBuyer {
		writeJSONError(w, http.StatusForbidden, "only buyers can post service requests")
		return
	}

	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	deadline, err := time.Parse("2006-01-02", payload.Deadline)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "deadline must be a YYYY-MM-DD date")
		return
	}

	ownerID, _ := r.Context().Value(ctxKeyUserID).(string)
	created, err := s.requestService.Create(r.Context(), request.CreateParams{
		OwnerID:     ownerID,
		Title:       payload.Title,
		Description: payload.Description,
		Category:    payload.Category,
		Budget:      payload.Budget,
		Deadline:    deadline,
		Location:    payload.Location,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

// handleServiceRequestDetail dispatches /api/service-requests/{id}[/offers[/{offerID}/accept]].
func (s *Server) handleServiceRequestDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/service-requests/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeJSONError(w, http.StatusBadRequest, "missing request id")
		return
	}
	requestID := parts[0]

	switch {
	case requestID == "open" && len(parts) == 1 && r.Method == http.MethodGet:
		list, err := s.requestService.ListOpen(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[requestResponse]{Items: toRequestResponses(list)})
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteServiceRequest(w, r, requestID)
	case len(parts) == 2 && parts[1] == "offers" && r.Method == http.MethodGet:
		s.handleListOffers(w, r, requestID)
	case len(parts) == 2 && parts[1] == "offers" && r.Method == http.MethodPost:
		s.handleSubmitOffer(w, r, requestID)
	case len(parts) == 4 && parts[1] == "offers" && parts[3] == "accept" && r.Method == http.MethodPost:
		s.handleAcceptOffer(w, r, requestID, parts[2])
	default:
		writeJSONError(w, http.StatusNotFound, "unknown route")
	}
}

func (s *Server) handleDeleteServiceRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	requesterID, _ := r.Context().Value(ctxKeyUserID).(string)
	if err := s.requestService.Delete(r.Context(), requestID, requesterID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request, requestID string) {
	offers, err := s.offerService.ListByRequest(r.Context(), requestID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[offerResponse]{Items: toOfferResponses(offers)})
}

type submitOfferPayload struct {
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request, requestID string) {
	if role, _ := r.Context().Value(ctxKeyRole).(auth.Role); role != auth.RoleSeller {
		writeJSONError(w, http.StatusForbidden, "only sellers can submit offers")
		return
	}

	var payload submitOfferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sellerID, _ := r.Context().Value(ctxKeyUserID).(string)
	created, err := s.offerService.Submit(r.Context(), offer.SubmitParams{
		RequestID: requestID,
		SellerID:  sellerID,
		Price:     payload.Price,
		Comment:   payload.Comment,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOfferResponse(created))
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request, requestID, offerID string) {
	requesterID, _ := r.Context().Value(ctxKeyUserID).(string)
	result, err := s.matchService.AcceptOffer(r.Context(), match.AcceptParams{
		RequestID:   requestID,
		OfferID:     offerID,
		RequesterID: requesterID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, acceptResponse{
		Request: toRequestResponse(result.Request),
		Offers:  toOfferResponses(result.Offers),
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if role, _ := r.Context().Value(ctxKeyRole).(auth.Role); role != auth.RoleSeller {
		writeJSONError(w, http.StatusForbidden, "feed is for sellers")
		return
	}

	sellerID, _ := r.Context().Value(ctxKeyUserID).(string)
	list, err := s.viewService.SellerFeed(r.Context(), sellerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[requestResponse]{Items: toRequestResponses(list)})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if role, _ := r.Context().Value(ctxKeyRole).(auth.Role); role != auth.RoleBuyer {
		writeJSONError(w, http.StatusForbidden, "dashboard is for buyers")
		return
	}

	ownerID, _ := r.Context().Value(ctxKeyUserID).(string)
	rows, err := s.viewService.BuyerView(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	items := make([]requestWithOffersResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, requestWithOffersResponse{
			Request: toRequestResponse(row.Request),
			Offers:  toOfferResponses(row.Offers),
		})
	}
	writeJSON(w, http.StatusOK, listResponse[requestWithOffersResponse]{Items: items})
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrInvalidInput),
		errors.Is(err, offer.ErrInvalidPrice),
		errors.Is(err, auth.ErrWeakPassword):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, request.ErrForbidden),
		errors.Is(err, match.ErrNotOwner):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, request.ErrNotFound),
		errors.Is(err, offer.ErrNotFound),
		errors.Is(err, offer.ErrRequestNotFound),
		errors.Is(err, match.ErrRequestNotFound),
		errors.Is(err, match.ErrOfferNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrHasOffers),
		errors.Is(err, offer.ErrRequestClosed),
		errors.Is(err, match.ErrRequestClosed),
		errors.Is(err, match.ErrOfferDecided),
		errors.Is(err, auth.ErrDuplicateUsername):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type requestResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Budget      string `json:"budget"`
	Deadline    string `json:"deadline"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

type offerResponse struct {
	ID        string  `json:"id"`
	RequestID string  `json:"requestId"`
	SellerID  string  `json:"sellerId"`
	Price     float64 `json:"price"`
	Comment   string  `json:"comment"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt"`
}

type requestWithOffersResponse struct {
	Request requestResponse `json:"request"`
	Offers  []offerResponse `json:"offers"`
}

type acceptResponse struct {
	Request requestResponse `json:"request"`
	Offers  []offerResponse `json:"offers"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Role:     string(u.Role),
	}
}

func toRequestResponse(req request.Request) requestResponse {
	return requestResponse{
		ID:          req.ID,
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Budget:      req.Budget,
		Deadline:    req.Deadline.Format("2006-01-02"),
		Location:    req.Location,
		Status:      string(req.Status),
		CreatedAt:   req.CreatedAt.Format(time.RFC3339),
	}
}

func toRequestResponses(list []request.Request) []requestResponse {
	out := make([]requestResponse, 0, len(list))
	for _, req := range list {
		out = append(out, toRequestResponse(req))
	}
	return out
}

func toOfferResponse(o offer.Offer) offerResponse {
	return offerResponse{
		ID:        o.ID,
		RequestID: o.RequestID,
		SellerID:  o.SellerID,
		Price:     o.Price,
		Comment:   o.Comment,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

func toOfferResponses(list []offer.Offer) []offerResponse {
	out := make([]offerResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOfferResponse(o))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
