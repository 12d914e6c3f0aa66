package payments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meddesk/consultq/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIntentNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Error: ErrNotIntentOwner, Status: http.StatusForbidden, Code: "forbidden"},
	{Error: ErrWindowExpired, Status: http.StatusPaymentRequired, Code: "payment_window_expired"},
}

// Handler handles HTTP requests for payment intents.
type Handler struct {
	gate *Gate
}

// NewHandler creates a new payments handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// RegisterRoutes registers payment routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/{id}/confirm", h.Confirm)
	})
}

// Confirm handles POST /payments/{id}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetActor(r.Context())

	intent, err := h.gate.Confirm(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, intent)
}
