// Package httpapi is the thin HTTP layer over the orchestration services.
// Handlers decode, delegate, and translate errors; business logic stays in
// the service packages.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"arcpay/internal/domain"
	"arcpay/internal/gate"
	"arcpay/internal/ledger"
	"arcpay/internal/ports"
	"arcpay/internal/scheduler"
	"arcpay/internal/syncvalidate"
	dErrors "arcpay/pkg/domain-errors"
	"arcpay/pkg/platform/httputil"
)

type Handler struct {
	gate       *gate.Service
	scheduler  *scheduler.Service
	validator  *syncvalidate.Validator
	payments   *ledger.Repository
	classifier ports.IntentClassifier
	logger     *slog.Logger
}

func NewHandler(
	g *gate.Service,
	s *scheduler.Service,
	v *syncvalidate.Validator,
	payments *ledger.Repository,
	classifier ports.IntentClassifier,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gate:       g,
		scheduler:  s,
		validator:  v,
		payments:   payments,
		classifier: classifier,
		logger:     logger,
	}
}

// SubmitIntentRequest carries either a structured intent or raw text for
// the classifier.
type SubmitIntentRequest struct {
	OwnerRef string                `json:"ownerRef"`
	Text     string                `json:"text,omitempty"`
	Intent   *domain.PaymentIntent `json:"intent,omitempty"`
}

func (h *Handler) handleSubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req SubmitIntentRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.OwnerRef == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "ownerRef is required"))
		return
	}

	var (
		result gate.Result
		err    error
	)
	switch {
	case req.Intent != nil:
		result, err = h.gate.SubmitIntent(r.Context(), req.OwnerRef, *req.Intent)
	case req.Text != "":
		if h.classifier == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "text submission is not enabled"))
			return
		}
		result, err = h.gate.SubmitText(r.Context(), req.OwnerRef, req.Text, h.classifier)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "either intent or text is required"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "submit intent failed", "owner", req.OwnerRef, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.gate.Cancel(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.payments.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	var (
		recs []domain.PaymentRecord
		err  error
	)
	if owner != "" {
		recs, err = h.payments.ListByOwner(r.Context(), owner)
	} else {
		recs, err = h.payments.ListWhere(r.Context(), func(domain.PaymentRecord) bool { return true })
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.PaymentRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.RunTick(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleSyncValidation(w http.ResponseWriter, r *http.Request) {
	violations, err := h.validator.Run(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if violations == nil {
		violations = []syncvalidate.Violation{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"violations": violations,
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
