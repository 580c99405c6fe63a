package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ClassHandler handles class-instance lifecycle endpoints
type ClassHandler struct {
	classService service.ClassService
	validate     *validator.Validate
	logger       zerolog.Logger
}

func NewClassHandler(classService service.ClassService, validate *validator.Validate, logger zerolog.Logger) *ClassHandler {
	return &ClassHandler{classService: classService, validate: validate, logger: logger}
}

// RegisterRoutes mounts class routes
func (h *ClassHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/clases", authMw(http.HandlerFunc(h.handleCollection)))
	mux.Handle("/clases/recurrentes", authMw(http.HandlerFunc(h.createRecurring)))
	mux.Handle("/clases/fecha/cancelar", authMw(http.HandlerFunc(h.cancelByDate)))
	mux.Handle("/clases/fecha/reactivar", authMw(http.HandlerFunc(h.reactivateByDate)))
	mux.Handle("/clases/", authMw(http.HandlerFunc(h.handleItem)))
}

func (h *ClassHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ClassHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/clases/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		switch {
		case parts[1] == "cancelar" && r.Method == http.MethodPost:
			h.cancel(w, r, id)
		case parts[1] == "reactivar" && r.Method == http.MethodPost:
			h.reactivate(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPatch:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// create godoc
// @Summary Create a single class instance
// @Tags clases
// @Accept json
// @Produce json
// @Param clase body dto.ClassCreateDTO true "Class creation request"
// @Success 201 {object} model.Class
// @Failure 400 {object} handler.errorResponse
// @Failure 403 {object} handler.errorResponse
// @Router /clases [post]
func (h *ClassHandler) create(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ClassCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.classService.CreateSingle(r.Context(), service.ClassInput{
		Name:        req.Nombre,
		ClassTypeID: req.TipoClase,
		Teacher:     req.Profesor,
		StartTime:   req.HoraInicio,
		EndTime:     req.HoraFin,
		Capacity:    req.Capacidad,
		Date:        req.Fecha,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// createRecurring godoc
// @Summary Create a recurring class family
// @Description Creates one instance per matching weekday in the date range; all share a recurrence rule.
// @Tags clases
// @Accept json
// @Produce json
// @Param clase body dto.ClassRecurringCreateDTO true "Recurring creation request"
// @Success 201 {array} model.Class
// @Failure 400 {object} handler.errorResponse
// @Router /clases/recurrentes [post]
func (h *ClassHandler) createRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ClassRecurringCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	out, err := h.classService.CreateRecurring(r.Context(), service.ClassInput{
		Name:        req.Nombre,
		ClassTypeID: req.TipoClase,
		Teacher:     req.Profesor,
		StartTime:   req.HoraInicio,
		EndTime:     req.HoraFin,
		Capacity:    req.Capacidad,
		Weekdays:    req.Dias,
		RangeStart:  req.FechaInicio,
		RangeEnd:    req.FechaFin,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// list godoc
// @Summary List class instances
// @Tags clases
// @Produce json
// @Param desde query string false "Range start (RFC 3339)"
// @Param hasta query string false "Range end (RFC 3339)"
// @Param tipoClase query string false "Class type filter"
// @Param estado query string false "State filter (activa|llena|cancelada)"
// @Success 200 {array} model.Class
// @Router /clases [get]
func (h *ClassHandler) list(w http.ResponseWriter, r *http.Request) {
	var f repository.ClassFilter
	q := r.URL.Query()
	if v := q.Get("desde"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid desde: "+err.Error(), http.StatusBadRequest)
			return
		}
		f.From = &t
	}
	if v := q.Get("hasta"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid hasta: "+err.Error(), http.StatusBadRequest)
			return
		}
		f.To = &t
	}
	f.ClassTypeID = q.Get("tipoClase")
	if v := q.Get("estado"); v != "" {
		f.States = []string{v}
	}
	out, err := h.classService.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []model.Class{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ClassHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.classService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// update godoc
// @Summary Update a class instance
// @Description Schedule changes notify enrolled members; capacity cannot drop below current enrollment.
// @Tags clases
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param clase body dto.ClassUpdateDTO true "Class update request"
// @Success 200 {object} model.Class
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /clases/{id} [patch]
func (h *ClassHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ClassUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.classService.Update(r.Context(), id, service.ClassPatch{
		Name:      req.Nombre,
		Teacher:   req.Profesor,
		StartTime: req.HoraInicio,
		EndTime:   req.HoraFin,
		Capacity:  req.Capacidad,
		Date:      req.Fecha,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// cancel godoc
// @Summary Cancel a class instance
// @Description Clears enrollments, refunds the debited credit types unless devolverCreditos=false.
// @Tags clases
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param opciones body dto.ClassCancelDTO false "Cancellation options"
// @Success 200 {object} model.Class
// @Failure 404 {object} handler.errorResponse
// @Failure 409 {object} handler.errorResponse
// @Router /clases/{id}/cancelar [post]
func (h *ClassHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if !requireAdmin(w, r) {
		return
	}
	refund := true
	var req dto.ClassCancelDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.DevolverCreditos != nil {
		refund = *req.DevolverCreditos
	}
	c, err := h.classService.Cancel(r.Context(), id, refund)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// reactivate godoc
// @Summary Reactivate a cancelled class instance
// @Tags clases
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} model.Class
// @Failure 409 {object} handler.errorResponse
// @Router /clases/{id}/reactivar [post]
func (h *ClassHandler) reactivate(w http.ResponseWriter, r *http.Request, id string) {
	if !requireAdmin(w, r) {
		return
	}
	c, err := h.classService.Reactivate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// delete godoc
// @Summary Delete a class instance
// @Description Refunds enrolled members and rolls the capacity out of the type totals.
// @Tags clases
// @Param id path string true "Class ID"
// @Success 204
// @Failure 404 {object} handler.errorResponse
// @Router /clases/{id} [delete]
func (h *ClassHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if !requireAdmin(w, r) {
		return
	}
	if err := h.classService.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cancelByDate godoc
// @Summary Cancel every active class on a calendar day
// @Tags clases
// @Accept json
// @Produce json
// @Param accion body dto.DateActionDTO true "Date action request"
// @Success 200 {object} dto.CountResponseDTO
// @Failure 400 {object} handler.errorResponse
// @Router /clases/fecha/cancelar [post]
func (h *ClassHandler) cancelByDate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.DateActionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	refund := true
	if req.DevolverCreditos != nil {
		refund = *req.DevolverCreditos
	}
	n, err := h.classService.CancelByDate(r.Context(), req.Fecha, refund)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CountResponseDTO{Cantidad: n})
}

// reactivateByDate godoc
// @Summary Reactivate every cancelled class on a calendar day
// @Tags clases
// @Accept json
// @Produce json
// @Param accion body dto.DateActionDTO true "Date action request"
// @Success 200 {object} dto.CountResponseDTO
// @Router /clases/fecha/reactivar [post]
func (h *ClassHandler) reactivateByDate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.DateActionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	n, err := h.classService.ReactivateByDate(r.Context(), req.Fecha)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CountResponseDTO{Cantidad: n})
}
