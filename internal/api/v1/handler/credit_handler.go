package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// CreditHandler handles the credit ledger's administrative surface:
// manual adjustments and monthly subscriptions.
type CreditHandler struct {
	creditService service.CreditService
	validate      *validator.Validate
	logger        zerolog.Logger
}

func NewCreditHandler(creditService service.CreditService, validate *validator.Validate, logger zerolog.Logger) *CreditHandler {
	return &CreditHandler{creditService: creditService, validate: validate, logger: logger}
}

// RegisterRoutes mounts credit routes
func (h *CreditHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/creditos/ajustar", authMw(http.HandlerFunc(h.adjust)))
	mux.Handle("/suscripciones", authMw(http.HandlerFunc(h.createSubscription)))
	mux.Handle("/suscripciones/", authMw(http.HandlerFunc(h.cancelSubscription)))
}

// adjust godoc
// @Summary Manually adjust a member's credits
// @Description Adds or removes credits of one type. Decreases that would leave a negative balance are rejected.
// @Tags creditos
// @Accept json
// @Produce json
// @Param ajuste body dto.CreditAdjustDTO true "Adjustment request"
// @Success 200 {object} dto.BalancesResponseDTO
// @Failure 400 {object} handler.errorResponse
// @Failure 403 {object} handler.errorResponse
// @Router /creditos/ajustar [post]
func (h *CreditHandler) adjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.CreditAdjustDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.creditService.AdjustManual(r.Context(), req.Usuario, req.TipoClase, req.Delta); err != nil {
		writeError(w, err)
		return
	}
	balances, err := h.creditService.Balances(r.Context(), req.Usuario)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalancesResponseDTO{Usuario: req.Usuario, Creditos: balances})
}

// createSubscription godoc
// @Summary Create a monthly credit subscription
// @Tags suscripciones
// @Accept json
// @Produce json
// @Param suscripcion body dto.SubscriptionCreateDTO true "Subscription request"
// @Success 201 {object} model.MonthlySubscription
// @Failure 400 {object} handler.errorResponse
// @Router /suscripciones [post]
func (h *CreditHandler) createSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.SubscriptionCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	sub := &model.MonthlySubscription{
		UserID:          req.Usuario,
		ClassTypeID:     req.TipoClase,
		Status:          req.Status,
		AutoRenewAmount: req.AutoRenewAmount,
	}
	if err := h.creditService.CreateSubscription(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// cancelSubscription godoc
// @Summary Cancel a monthly credit subscription
// @Tags suscripciones
// @Param id path string true "Subscription ID"
// @Success 204
// @Failure 404 {object} handler.errorResponse
// @Router /suscripciones/{id} [delete]
func (h *CreditHandler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	subID := strings.TrimPrefix(r.URL.Path, "/suscripciones/")
	if subID == "" || strings.Contains(subID, "/") {
		http.NotFound(w, r)
		return
	}
	if err := h.creditService.CancelSubscription(r.Context(), subID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
