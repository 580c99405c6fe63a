package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ScheduleHandler handles group-level operations over recurring families
type ScheduleHandler struct {
	scheduleService service.ScheduleService
	validate        *validator.Validate
	logger          zerolog.Logger
}

func NewScheduleHandler(scheduleService service.ScheduleService, validate *validator.Validate, logger zerolog.Logger) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService, validate: validate, logger: logger}
}

// RegisterRoutes mounts schedule routes
func (h *ScheduleHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/agenda/grupos", authMw(http.HandlerFunc(h.groupedList)))
	mux.Handle("/agenda/grupos/actualizar", authMw(http.HandlerFunc(h.bulkUpdate)))
	mux.Handle("/agenda/grupos/eliminar", authMw(http.HandlerFunc(h.bulkDelete)))
	mux.Handle("/agenda/grupos/extender", authMw(http.HandlerFunc(h.bulkExtend)))
}

func familyKey(k dto.ScheduleGroupKeyDTO) repository.FamilyKey {
	return repository.FamilyKey{Name: k.Nombre, ClassTypeID: k.TipoClase, StartTime: k.HoraInicio}
}

// groupedList godoc
// @Summary List recurring families grouped by rule
// @Tags agenda
// @Produce json
// @Success 200 {array} service.GroupedClass
// @Router /agenda/grupos [get]
func (h *ScheduleHandler) groupedList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	from := time.Now().UTC()
	if v := r.URL.Query().Get("desde"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid desde: "+err.Error(), http.StatusBadRequest)
			return
		}
		from = t
	}
	groups, err := h.scheduleService.GroupedList(r.Context(), from)
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []service.GroupedClass{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// bulkUpdate godoc
// @Summary Bulk-edit a recurring family
// @Description Applies field changes to every future instance; when dias is present the family is regenerated under the new weekday pattern.
// @Tags agenda
// @Accept json
// @Produce json
// @Param cambios body dto.ScheduleBulkUpdateDTO true "Bulk update request"
// @Success 200 {object} dto.CountResponseDTO
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /agenda/grupos/actualizar [post]
func (h *ScheduleHandler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ScheduleBulkUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	n, err := h.scheduleService.BulkUpdate(r.Context(), service.BulkUpdateInput{
		Key:      familyKey(req.ScheduleGroupKeyDTO),
		From:     req.Desde,
		Weekdays: req.Dias,
		Changes: repository.ClassUpdate{
			Name:      req.NuevoNombre,
			Teacher:   req.Profesor,
			Capacity:  req.Capacidad,
			StartTime: req.NuevaHora,
			EndTime:   req.NuevaHoraFin,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CountResponseDTO{Cantidad: n})
}

// bulkDelete godoc
// @Summary Bulk-delete a recurring family
// @Description Removes every future instance; enrollments are dropped without refunds.
// @Tags agenda
// @Accept json
// @Produce json
// @Param grupo body dto.ScheduleBulkDeleteDTO true "Bulk delete request"
// @Success 200 {object} dto.CountResponseDTO
// @Failure 404 {object} handler.errorResponse
// @Router /agenda/grupos/eliminar [post]
func (h *ScheduleHandler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ScheduleBulkDeleteDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	n, err := h.scheduleService.BulkDelete(r.Context(), familyKey(req.ScheduleGroupKeyDTO), req.Desde)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CountResponseDTO{Cantidad: n})
}

// bulkExtend godoc
// @Summary Extend a recurring family
// @Description Creates new instances after the family's last date through the new end, reusing the rule token.
// @Tags agenda
// @Accept json
// @Produce json
// @Param extension body dto.ScheduleBulkExtendDTO true "Bulk extend request"
// @Success 201 {array} model.Class
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /agenda/grupos/extender [post]
func (h *ScheduleHandler) bulkExtend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ScheduleBulkExtendDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.scheduleService.BulkExtend(r.Context(), familyKey(req.ScheduleGroupKeyDTO), req.NuevaFechaFin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
