package dto

import "time"

// ClassCreateDTO is used for incoming single-class creation requests
type ClassCreateDTO struct {
	Nombre     string    `json:"nombre" validate:"required"`
	TipoClase  string    `json:"tipoClase" validate:"required"`
	Profesor   string    `json:"profesor,omitempty"`
	HoraInicio string    `json:"horaInicio" validate:"required,datetime=15:04"`
	HoraFin    string    `json:"horaFin" validate:"required,datetime=15:04"`
	Capacidad  int       `json:"capacidad" validate:"gte=0"`
	Fecha      time.Time `json:"fecha" validate:"required"`
}

// ClassRecurringCreateDTO creates one instance per matching weekday inside
// the date range.
type ClassRecurringCreateDTO struct {
	Nombre      string    `json:"nombre" validate:"required"`
	TipoClase   string    `json:"tipoClase" validate:"required"`
	Profesor    string    `json:"profesor,omitempty"`
	HoraInicio  string    `json:"horaInicio" validate:"required,datetime=15:04"`
	HoraFin     string    `json:"horaFin" validate:"required,datetime=15:04"`
	Capacidad   int       `json:"capacidad" validate:"gte=0"`
	Dias        []string  `json:"dias" validate:"required,min=1"`
	FechaInicio time.Time `json:"fechaInicio" validate:"required"`
	FechaFin    time.Time `json:"fechaFin" validate:"required"`
}

// ClassUpdateDTO is a partial update; omitted fields stay untouched.
type ClassUpdateDTO struct {
	Nombre     *string    `json:"nombre,omitempty"`
	Profesor   *string    `json:"profesor,omitempty"`
	HoraInicio *string    `json:"horaInicio,omitempty" validate:"omitempty,datetime=15:04"`
	HoraFin    *string    `json:"horaFin,omitempty" validate:"omitempty,datetime=15:04"`
	Capacidad  *int       `json:"capacidad,omitempty" validate:"omitempty,gte=0"`
	Fecha      *time.Time `json:"fecha,omitempty"`
}

// ClassCancelDTO controls whether cancellation refunds the debited credits.
// Refunds default to true when the field is omitted.
type ClassCancelDTO struct {
	DevolverCreditos *bool `json:"devolverCreditos,omitempty"`
}

// DateActionDTO cancels or reactivates every class on one calendar day.
type DateActionDTO struct {
	Fecha            time.Time `json:"fecha" validate:"required"`
	DevolverCreditos *bool     `json:"devolverCreditos,omitempty"`
}

// CountResponseDTO reports how many instances a batch operation touched.
type CountResponseDTO struct {
	Cantidad int `json:"cantidad"`
}
