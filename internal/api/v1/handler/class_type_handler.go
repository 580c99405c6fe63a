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

// ClassTypeHandler handles class-type catalog endpoints
type ClassTypeHandler struct {
	typeService service.ClassTypeService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewClassTypeHandler(typeService service.ClassTypeService, validate *validator.Validate, logger zerolog.Logger) *ClassTypeHandler {
	return &ClassTypeHandler{typeService: typeService, validate: validate, logger: logger}
}

// RegisterRoutes mounts class-type routes
func (h *ClassTypeHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/tipos-clase", authMw(http.HandlerFunc(h.handleCollection)))
	mux.Handle("/tipos-clase/", authMw(http.HandlerFunc(h.handleItem)))
}

func (h *ClassTypeHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ClassTypeHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/tipos-clase/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// create godoc
// @Summary Create a class type
// @Tags tipos-clase
// @Accept json
// @Produce json
// @Param tipo body dto.ClassTypeCreateDTO true "Class type creation request"
// @Success 201 {object} model.ClassType
// @Failure 400 {object} handler.errorResponse
// @Failure 403 {object} handler.errorResponse
// @Router /tipos-clase [post]
func (h *ClassTypeHandler) create(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ClassTypeCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	ct := &model.ClassType{
		Name:         req.Nombre,
		Description:  req.Descripcion,
		Price:        req.Precio,
		ResetMensual: req.ResetMensual,
	}
	if err := h.typeService.Create(r.Context(), ct); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ct)
}

// list godoc
// @Summary List class types
// @Tags tipos-clase
// @Produce json
// @Success 200 {array} model.ClassType
// @Router /tipos-clase [get]
func (h *ClassTypeHandler) list(w http.ResponseWriter, r *http.Request) {
	types, err := h.typeService.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *ClassTypeHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	ct, err := h.typeService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// update godoc
// @Summary Update a class type
// @Tags tipos-clase
// @Accept json
// @Produce json
// @Param id path string true "Class type ID"
// @Param tipo body dto.ClassTypeUpdateDTO true "Class type update request"
// @Success 200 {object} model.ClassType
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /tipos-clase/{id} [put]
func (h *ClassTypeHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	if !requireAdmin(w, r) {
		return
	}
	var req dto.ClassTypeUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	ct, err := h.typeService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Nombre != nil {
		ct.Name = *req.Nombre
	}
	if req.Descripcion != nil {
		ct.Description = *req.Descripcion
	}
	if req.Precio != nil {
		ct.Price = *req.Precio
	}
	if req.ResetMensual != nil {
		ct.ResetMensual = *req.ResetMensual
	}
	if err := h.typeService.Update(r.Context(), ct); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// delete godoc
// @Summary Delete a class type
// @Description Refused while class instances of the type still exist.
// @Tags tipos-clase
// @Param id path string true "Class type ID"
// @Success 204
// @Failure 404 {object} handler.errorResponse
// @Failure 409 {object} handler.errorResponse
// @Router /tipos-clase/{id} [delete]
func (h *ClassTypeHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if !requireAdmin(w, r) {
		return
	}
	if err := h.typeService.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
