package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// EnrollmentHandler handles enrollment, waitlist and plan endpoints
type EnrollmentHandler struct {
	enrollService service.EnrollmentService
	validate      *validator.Validate
	logger        zerolog.Logger
}

func NewEnrollmentHandler(enrollService service.EnrollmentService, validate *validator.Validate, logger zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{enrollService: enrollService, validate: validate, logger: logger}
}

// RegisterRoutes mounts enrollment routes
func (h *EnrollmentHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/inscripciones/", authMw(http.HandlerFunc(h.handleClassAction)))
	mux.Handle("/planes", authMw(http.HandlerFunc(h.handlePlans)))
	mux.Handle("/planes/", authMw(http.HandlerFunc(h.removePlan)))
}

// targetUser resolves who the operation applies to: admins may name another
// member in the body, everyone else acts on themselves.
func (h *EnrollmentHandler) targetUser(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	acting := actingUser(r)
	if requested == "" || requested == acting {
		return acting, true
	}
	if !isAdmin(r) {
		writeError(w, apperr.New(apperr.KindAuthorization, "no puedes operar sobre otro usuario"))
		return "", false
	}
	return requested, true
}

func (h *EnrollmentHandler) handleClassAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/inscripciones/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	classID, action := parts[0], parts[1]

	// Body is optional: self-service requests may send none.
	var req dto.EnrollDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = dto.EnrollDTO{}
	}
	userID, ok := h.targetUser(w, r, req.Usuario)
	if !ok {
		return
	}

	switch action {
	case "alta":
		h.enroll(w, r, classID, userID)
	case "baja":
		h.unenroll(w, r, classID, userID)
	case "lista-espera":
		h.subscribeWaitlist(w, r, classID, userID)
	case "lista-espera/baja":
		h.unsubscribeWaitlist(w, r, classID, userID)
	default:
		http.NotFound(w, r)
	}
}

// enroll godoc
// @Summary Enroll a member into a class
// @Description Debits free pass, own-type or universal credit in that order. Admins may enroll another member; that also removes them from the waitlist.
// @Tags inscripciones
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param inscripcion body dto.EnrollDTO false "Target member (admin only)"
// @Success 200 {object} model.Class
// @Failure 409 {object} handler.errorResponse
// @Failure 422 {object} handler.errorResponse
// @Router /inscripciones/{id}/alta [post]
func (h *EnrollmentHandler) enroll(w http.ResponseWriter, r *http.Request, classID, userID string) {
	byAdmin := isAdmin(r) && userID != actingUser(r)
	c, err := h.enrollService.Enroll(r.Context(), classID, userID, byAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// unenroll godoc
// @Summary Remove a member from a class
// @Description Self-service closes one hour before start; admin removal bypasses the cutoff. The credit type debited at enrollment is refunded.
// @Tags inscripciones
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param inscripcion body dto.EnrollDTO false "Target member (admin only)"
// @Success 200 {object} model.Class
// @Failure 409 {object} handler.errorResponse
// @Router /inscripciones/{id}/baja [post]
func (h *EnrollmentHandler) unenroll(w http.ResponseWriter, r *http.Request, classID, userID string) {
	force := isAdmin(r) && userID != actingUser(r)
	c, err := h.enrollService.Unenroll(r.Context(), classID, userID, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *EnrollmentHandler) subscribeWaitlist(w http.ResponseWriter, r *http.Request, classID, userID string) {
	if err := h.enrollService.SubscribeWaitlist(r.Context(), classID, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EnrollmentHandler) unsubscribeWaitlist(w http.ResponseWriter, r *http.Request, classID, userID string) {
	if err := h.enrollService.UnsubscribeWaitlist(r.Context(), classID, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EnrollmentHandler) handlePlans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.enrollPlan(w, r)
	case http.MethodGet:
		h.listPlans(w, r)
	default:
		http.NotFound(w, r)
	}
}

// enrollPlan godoc
// @Summary Bulk-enroll a member into a recurring plan
// @Description Enrolls into every matching future instance; any failure rolls the whole batch back.
// @Tags planes
// @Accept json
// @Produce json
// @Param plan body dto.PlanCreateDTO true "Plan enrollment request"
// @Success 201 {object} dto.PlanEnrollResponseDTO
// @Failure 409 {object} handler.errorResponse
// @Failure 422 {object} handler.errorResponse
// @Router /planes [post]
func (h *EnrollmentHandler) enrollPlan(w http.ResponseWriter, r *http.Request) {
	var req dto.PlanCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	userID, ok := h.targetUser(w, r, req.Usuario)
	if !ok {
		return
	}
	plan, n, err := h.enrollService.EnrollPlan(r.Context(), service.PlanInput{
		UserID:      userID,
		ClassTypeID: req.TipoClase,
		Weekdays:    req.Dias,
		StartTime:   req.HoraInicio,
		EndTime:     req.HoraFin,
		Desde:       req.Desde,
		Hasta:       req.Hasta,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.PlanEnrollResponseDTO{PlanID: plan.ID, Cantidad: n})
}

// listPlans godoc
// @Summary List the acting member's plans
// @Tags planes
// @Produce json
// @Success 200 {array} model.Plan
// @Router /planes [get]
func (h *EnrollmentHandler) listPlans(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUser(w, r, r.URL.Query().Get("usuario"))
	if !ok {
		return
	}
	plans, err := h.enrollService.ListPlans(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// removePlan godoc
// @Summary Remove a plan
// @Description Deletes the plan and unenrolls the member from its future matching instances, refunding per the recorded credit types.
// @Tags planes
// @Param id path string true "Plan ID"
// @Success 200 {object} dto.CountResponseDTO
// @Failure 404 {object} handler.errorResponse
// @Router /planes/{id} [delete]
func (h *EnrollmentHandler) removePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	planID := strings.TrimPrefix(r.URL.Path, "/planes/")
	if planID == "" || strings.Contains(planID, "/") {
		http.NotFound(w, r)
		return
	}
	userID, ok := h.targetUser(w, r, r.URL.Query().Get("usuario"))
	if !ok {
		return
	}
	n, err := h.enrollService.RemovePlan(r.Context(), userID, planID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CountResponseDTO{Cantidad: n})
}
