package dto

import "time"

// EnrollDTO names the member an admin enrolls or removes. Self-service
// requests omit it; the acting user is taken from the token.
type EnrollDTO struct {
	Usuario string `json:"usuario,omitempty"`
}

// PlanCreateDTO bulk-enrolls a member into every matching instance of a
// class type and persists the plan for later removal.
type PlanCreateDTO struct {
	Usuario    string    `json:"usuario,omitempty"`
	TipoClase  string    `json:"tipoClase" validate:"required"`
	Dias       []string  `json:"dias" validate:"required,min=1"`
	HoraInicio string    `json:"horaInicio" validate:"required,datetime=15:04"`
	HoraFin    string    `json:"horaFin" validate:"required,datetime=15:04"`
	Desde      time.Time `json:"desde" validate:"required"`
	Hasta      time.Time `json:"hasta" validate:"required"`
}

// PlanEnrollResponseDTO reports the persisted plan id and how many
// instances the member was enrolled into.
type PlanEnrollResponseDTO struct {
	PlanID   string `json:"planId"`
	Cantidad int    `json:"cantidad"`
}
