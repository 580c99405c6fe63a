package model

import "time"

// UniversalTypeName is the reserved name of the per-tenant universal credit
// type. Universal credits can pay for any class but the type itself is never
// bookable. Exactly one class type per tenant carries EsUniversal=true.
const UniversalTypeName = "Universal"

// ClassType represents a kind of class offered by the gym (TipoClase).
// CreditosTotales accumulates the capacities of every instance ever created
// for the type; CreditosDisponibles is derived (totales minus credits
// currently held by users) and is never stored.
type ClassType struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"nombre"`
	Description         string    `db:"description" json:"descripcion"`
	Price               int       `db:"price" json:"precio"`
	ResetMensual        bool      `db:"reset_mensual" json:"resetMensual"`
	EsUniversal         bool      `db:"es_universal" json:"esUniversal"`
	CreditosTotales     int       `db:"creditos_totales" json:"creditosTotales"`
	CreditosDisponibles int       `db:"-" json:"creditosDisponibles"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// ClampDisponibles returns CreditosDisponibles floored at zero. Admin manual
// assignments can drive the derived value negative; listings never show that.
func (t *ClassType) ClampDisponibles() int {
	if t.CreditosDisponibles < 0 {
		return 0
	}
	return t.CreditosDisponibles
}
