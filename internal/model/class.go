package model

import "time"

// Class states. A class is bookable only while "activa"; "cancelada" is
// terminal unless explicitly reactivated.
const (
	ClassStateActive    = "activa"
	ClassStateFull      = "llena"
	ClassStateCancelled = "cancelada"
)

// Enrollment kinds: a one-off class ("libre") or one instance of a recurring
// family ("fijo"). Fijo instances share a recurrence-rule token.
const (
	EnrollmentKindLibre = "libre"
	EnrollmentKindFijo  = "fijo"
)

// EnrollmentDetail records which credit type was actually debited for an
// enrolled user. Users covered by a free pass consume nothing and therefore
// have no detail entry; refunds always follow the recorded type.
type EnrollmentDetail struct {
	UserID          string  `db:"user_id" json:"usuario"`
	TipoCreditoUsed *string `db:"credit_type_id" json:"tipoCreditoUsado,omitempty"`
}

// Class represents one concrete class instance (Clase) on a calendar day.
// Date is stored at fixed UTC noon so timezone conversion can never shift
// the calendar day.
type Class struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"nombre"`
	ClassTypeID    string    `db:"class_type_id" json:"tipoClase"`
	Teacher        string    `db:"teacher" json:"profesor"`
	StartTime      string    `db:"start_time" json:"horaInicio"` // HH:mm
	EndTime        string    `db:"end_time" json:"horaFin"`      // HH:mm
	Capacity       int       `db:"capacity" json:"capacidad"`
	Date           time.Time `db:"date" json:"fecha"`
	Weekday        string    `db:"weekday" json:"dia"`
	EnrollmentKind string    `db:"enrollment_kind" json:"tipoInscripcion"`
	RecurrenceRule string    `db:"recurrence_rule" json:"reglaRecurrencia,omitempty"`
	State          string    `db:"state" json:"estado"`

	Enrolled  []string           `db:"-" json:"usuariosInscritos"`
	Waitlist  []string           `db:"-" json:"listaEspera"`
	Detalles  []EnrollmentDetail `db:"-" json:"inscripcionesDetalle"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// StartInstant combines the stored calendar day with the HH:mm start time in
// the gym's civil timezone. Server-local time is never used here, the
// unenrollment cutoff must not move when the service is deployed in another
// region.
func (c *Class) StartInstant(utcOffsetMin int) time.Time {
	loc := time.FixedZone("gym", utcOffsetMin*60)
	hh, mm := parseHHMM(c.StartTime)
	return time.Date(c.Date.Year(), c.Date.Month(), c.Date.Day(), hh, mm, 0, 0, loc)
}

// IsFull reports whether enrollment has reached capacity.
func (c *Class) IsFull() bool {
	return len(c.Enrolled) >= c.Capacity
}

// DetailFor returns the recorded debit detail for a user, if any.
func (c *Class) DetailFor(userID string) *EnrollmentDetail {
	for i := range c.Detalles {
		if c.Detalles[i].UserID == userID {
			return &c.Detalles[i]
		}
	}
	return nil
}

// IsEnrolled reports whether the user appears in the enrollment list.
func (c *Class) IsEnrolled(userID string) bool {
	for _, id := range c.Enrolled {
		if id == userID {
			return true
		}
	}
	return false
}

// IsWaitlisted reports whether the user appears on the waitlist.
func (c *Class) IsWaitlisted(userID string) bool {
	for _, id := range c.Waitlist {
		if id == userID {
			return true
		}
	}
	return false
}

func parseHHMM(s string) (int, int) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0
	}
	return hh, mm
}
