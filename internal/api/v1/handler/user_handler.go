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

// UserHandler handles the member-scoped read surface and the admin
// free-pass endpoints under /usuarios.
type UserHandler struct {
	creditService service.CreditService
	enrollService service.EnrollmentService
	validate      *validator.Validate
	logger        zerolog.Logger
}

func NewUserHandler(creditService service.CreditService, enrollService service.EnrollmentService,
	validate *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		creditService: creditService,
		enrollService: enrollService,
		validate:      validate,
		logger:        logger,
	}
}

// RegisterRoutes mounts user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/usuarios/", authMw(http.HandlerFunc(h.handleUser)))
}

func (h *UserHandler) handleUser(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/usuarios/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	userID, resource := parts[0], parts[1]
	switch {
	case resource == "creditos" && r.Method == http.MethodGet:
		h.balances(w, r, userID)
	case resource == "clases" && r.Method == http.MethodGet:
		h.enrolledClasses(w, r, userID)
	case resource == "planes" && r.Method == http.MethodGet:
		h.plans(w, r, userID)
	case resource == "suscripciones" && r.Method == http.MethodGet:
		h.subscriptions(w, r, userID)
	case resource == "pase-libre" && r.Method == http.MethodPut:
		h.setFreePass(w, r, userID)
	case resource == "pase-libre" && r.Method == http.MethodDelete:
		h.clearFreePass(w, r, userID)
	default:
		http.NotFound(w, r)
	}
}

// canRead allows members to read their own resources and admins anyone's.
func (h *UserHandler) canRead(w http.ResponseWriter, r *http.Request, userID string) bool {
	if userID == actingUser(r) {
		return true
	}
	return requireAdmin(w, r)
}

// balances godoc
// @Summary Get a member's credit balances
// @Tags usuarios
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} dto.BalancesResponseDTO
// @Router /usuarios/{id}/creditos [get]
func (h *UserHandler) balances(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.canRead(w, r, userID) {
		return
	}
	balances, err := h.creditService.Balances(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalancesResponseDTO{Usuario: userID, Creditos: balances})
}

// enrolledClasses godoc
// @Summary List a member's enrolled classes
// @Tags usuarios
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} model.Class
// @Router /usuarios/{id}/clases [get]
func (h *UserHandler) enrolledClasses(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.canRead(w, r, userID) {
		return
	}
	classes, err := h.enrollService.ListEnrolledClasses(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if classes == nil {
		classes = []model.Class{}
	}
	writeJSON(w, http.StatusOK, classes)
}

// plans godoc
// @Summary List a member's plans
// @Tags usuarios
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} model.Plan
// @Router /usuarios/{id}/planes [get]
func (h *UserHandler) plans(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.canRead(w, r, userID) {
		return
	}
	plans, err := h.enrollService.ListPlans(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if plans == nil {
		plans = []model.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// subscriptions godoc
// @Summary List a member's subscriptions
// @Tags usuarios
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} model.MonthlySubscription
// @Router /usuarios/{id}/suscripciones [get]
func (h *UserHandler) subscriptions(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.canRead(w, r, userID) {
		return
	}
	subs, err := h.creditService.ListSubscriptions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if subs == nil {
		subs = []model.MonthlySubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// setFreePass godoc
// @Summary Set a member's free-pass window
// @Tags usuarios
// @Accept json
// @Param id path string true "User ID"
// @Param pase body dto.FreePassDTO true "Free-pass window"
// @Success 204
// @Failure 400 {object} handler.errorResponse
// @Router /usuarios/{id}/pase-libre [put]
func (h *UserHandler) setFreePass(w http.ResponseWriter, r *http.Request, userID string) {
	if !requireAdmin(w, r) {
		return
	}
	var req dto.FreePassDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.creditService.SetFreePass(r.Context(), userID, req.Desde, req.Hasta); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearFreePass godoc
// @Summary Clear a member's free pass
// @Tags usuarios
// @Param id path string true "User ID"
// @Success 204
// @Router /usuarios/{id}/pase-libre [delete]
func (h *UserHandler) clearFreePass(w http.ResponseWriter, r *http.Request, userID string) {
	if !requireAdmin(w, r) {
		return
	}
	if err := h.creditService.ClearFreePass(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
