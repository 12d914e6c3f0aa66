package queue

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound, Code: CodeNotFound},
	{Error: ErrAppointmentNotFound, Status: http.StatusNotFound, Code: CodeNotFound},
	{Error: ErrForbidden, Status: http.StatusForbidden, Code: CodeForbidden},
	{Error: ErrAlreadyAccepted, Status: http.StatusConflict, Code: CodeConflict},
	{Error: ErrConflict, Status: http.StatusConflict, Code: CodeConflict},
	{Error: ErrInvalidState, Status: http.StatusConflict, Code: CodeInvalidState},
	{Error: ErrPaymentRequired, Status: http.StatusPaymentRequired, Code: CodePaymentRequired},
	{Error: ErrPaymentWindowExpired, Status: http.StatusPaymentRequired, Code: CodePaymentWindowExpired},
	{Error: ErrAlreadyPaid, Status: http.StatusConflict, Code: CodeInvalidState},
	{Error: ErrOutOfWindow, Status: http.StatusUnprocessableEntity, Code: CodeOutOfWindow},
	{Error: ErrTooManyCandidates, Status: http.StatusBadRequest, Code: CodeTooManyCandidates},
	{Error: ErrReasonRequired, Status: http.StatusBadRequest, Code: CodeInvalidArgument},
}

// Handler handles HTTP requests for the queue engine.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers queue routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.ListQueue)
		r.Get("/history", h.ListHistory)
		r.Post("/", h.CreateItem)
		r.Post("/broadcast", h.CreateBroadcast)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetItem)
			r.Post("/accept", h.Accept)
			r.Post("/reject", h.Reject)
			r.Post("/cancel", h.Cancel)
			r.Post("/start", h.Start)
			r.Post("/close", h.Close)
			r.Post("/payment", h.EnablePayment)
		})
	})
}

// CreateItemRequest represents request body for creating a queue item.
type CreateItemRequest struct {
	DoctorID      string  `json:"doctor_id" validate:"required_without=AppointmentID,omitempty,uuid"`
	EntryType     string  `json:"entry_type" validate:"required,oneof=walk_in appointment"`
	AppointmentID *string `json:"appointment_id" validate:"omitempty,uuid"`
	Reason        string  `json:"reason" validate:"max=2000"`
}

// CreateBroadcastRequest represents request body for an emergency broadcast.
type CreateBroadcastRequest struct {
	CandidateDoctorIDs []string `json:"candidate_doctor_ids" validate:"required,min=1,dive,uuid"`
	Reason             string   `json:"reason" validate:"required,max=2000"`
}

// ReasonRequest carries the optional free-text reason for reject/cancel.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// EnablePaymentRequest represents request body for attaching a charge.
type EnablePaymentRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

// CreateItem handles POST /queue.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, CodeInvalidArgument, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}
	if req.EntryType == string(domain.EntryTypeAppointment) && req.AppointmentID == nil {
		httputil.Error(w, http.StatusBadRequest, CodeInvalidArgument, "appointment_id is required for appointment entries")
		return
	}

	item, err := h.service.CreateItem(r.Context(), actor, CreateItemInput{
		DoctorID:      req.DoctorID,
		EntryType:     domain.EntryType(req.EntryType),
		AppointmentID: req.AppointmentID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, item)
}

// CreateBroadcast handles POST /queue/broadcast.
func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	var req CreateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, CodeInvalidArgument, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	items, err := h.service.CreateBroadcast(r.Context(), actor, BroadcastInput{
		CandidateDoctorIDs: req.CandidateDoctorIDs,
		Reason:             req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, items)
}

// ListQueue handles GET /queue.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	items, err := h.service.ListForDoctor(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}

// ListHistory handles GET /queue/history.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	items, err := h.service.ListHistory(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}

// GetItem handles GET /queue/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	item, err := h.service.GetItem(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Accept handles POST /queue/{id}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	item, err := h.service.Accept(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Reject handles POST /queue/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	req, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	item, err := h.service.Reject(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Cancel handles POST /queue/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	req, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	item, err := h.service.Cancel(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// StartResponse is the payload returned when a consultation starts.
type StartResponse struct {
	Item         *domain.QueueItem    `json:"item"`
	Consultation *domain.Consultation `json:"consultation"`
}

// Start handles POST /queue/{id}/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	item, consultation, err := h.service.Start(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, StartResponse{Item: item, Consultation: consultation})
}

// Close handles POST /queue/{id}/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	item, err := h.service.Close(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// EnablePayment handles POST /queue/{id}/payment.
func (h *Handler) EnablePayment(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	var req EnablePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, CodeInvalidArgument, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	handle, err := h.service.EnablePayment(r.Context(), actor, chi.URLParam(r, "id"), req.AmountCents)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, handle)
}

// decodeReason reads the optional reason body. Cancel/reject work without a
// body, so only a present-but-malformed payload is rejected.
func (h *Handler) decodeReason(w http.ResponseWriter, r *http.Request) (ReasonRequest, bool) {
	var req ReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, CodeInvalidArgument, "invalid json")
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return req, false
	}
	return req, true
}

// handleError surfaces quota exhaustion with its retry metadata before
// falling back to the shared mapping table.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		httputil.ErrorWithFields(w, http.StatusTooManyRequests, CodeEmergencyLimitReached, limitErr.Error(),
			map[string]interface{}{
				"window":              string(limitErr.Window),
				"reset_at":            limitErr.ResetAt,
				"retry_after_seconds": int(limitErr.RetryAfter.Seconds()),
			})
		return
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
