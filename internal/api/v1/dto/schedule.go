package dto

import "time"

// ScheduleGroupKeyDTO identifies a recurring family: instances sharing
// name, class type and start time.
type ScheduleGroupKeyDTO struct {
	Nombre     string `json:"nombre" validate:"required"`
	TipoClase  string `json:"tipoClase" validate:"required"`
	HoraInicio string `json:"horaInicio" validate:"required,datetime=15:04"`
}

// ScheduleBulkUpdateDTO edits every future instance of a family. When Dias
// is present the family is regenerated under the new weekday pattern.
type ScheduleBulkUpdateDTO struct {
	ScheduleGroupKeyDTO
	Desde        time.Time `json:"desde" validate:"required"`
	Dias         []string  `json:"dias,omitempty"`
	NuevoNombre  *string   `json:"nuevoNombre,omitempty"`
	Profesor     *string   `json:"profesor,omitempty"`
	Capacidad    *int      `json:"capacidad,omitempty" validate:"omitempty,gte=0"`
	NuevaHora    *string   `json:"nuevaHoraInicio,omitempty" validate:"omitempty,datetime=15:04"`
	NuevaHoraFin *string   `json:"nuevaHoraFin,omitempty" validate:"omitempty,datetime=15:04"`
}

// ScheduleBulkDeleteDTO removes every future instance of a family.
type ScheduleBulkDeleteDTO struct {
	ScheduleGroupKeyDTO
	Desde time.Time `json:"desde" validate:"required"`
}

// ScheduleBulkExtendDTO continues a family past its last instance.
type ScheduleBulkExtendDTO struct {
	ScheduleGroupKeyDTO
	NuevaFechaFin time.Time `json:"nuevaFechaFin" validate:"required"`
}
