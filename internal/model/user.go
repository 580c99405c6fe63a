package model

import "time"

// Subscription statuses. Automatic subscriptions are topped up by the monthly
// renewal job; manual ones only change through admin action.
const (
	SubscriptionManual     = "manual"
	SubscriptionAutomatica = "automatica"
)

// User carries the credit-relevant subset of a gym member: per-type credit
// balances, denormalized enrolled-class ids, recurring plans, monthly
// subscriptions and the optional free-pass window.
type User struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"nombre"`
	Email          string     `db:"email" json:"email"`
	Role           string     `db:"role" json:"rol"`
	PaseLibreDesde *time.Time `db:"pase_libre_desde" json:"paseLibreDesde,omitempty"`
	PaseLibreHasta *time.Time `db:"pase_libre_hasta" json:"paseLibreHasta,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	CreditosPorTipo map[string]int `db:"-" json:"creditosPorTipo,omitempty"`
	ClasesInscritas []string       `db:"-" json:"clasesInscritas,omitempty"`
}

// FreePassCovers reports whether the user's free pass is active on the given
// calendar day. The comparison is date-only and inclusive at both ends.
func (u *User) FreePassCovers(date time.Time) bool {
	if u.PaseLibreDesde == nil || u.PaseLibreHasta == nil {
		return false
	}
	d := toDay(date)
	return !d.Before(toDay(*u.PaseLibreDesde)) && !d.After(toDay(*u.PaseLibreHasta))
}

// FreePassExpiredBefore reports whether the user had a free pass that ended
// before the given day. Used to word insufficient-credit rejections.
func (u *User) FreePassExpiredBefore(date time.Time) bool {
	if u.PaseLibreHasta == nil {
		return false
	}
	return toDay(*u.PaseLibreHasta).Before(toDay(date))
}

func toDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Plan is a recurring enrollment definition (planesFijos entry): which class
// type, on which weekdays and time window, across which date range the user
// bulk-enrolled. Kept for profile display and later removal.
type Plan struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"usuario"`
	ClassTypeID string    `db:"class_type_id" json:"tipoClase"`
	Weekdays    []string  `db:"weekdays" json:"dias"`
	StartTime   string    `db:"start_time" json:"horaInicio"`
	EndTime     string    `db:"end_time" json:"horaFin"`
	Desde       time.Time `db:"desde" json:"desde"`
	Hasta       time.Time `db:"hasta" json:"hasta"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MonthlySubscription drives monthly credit auto-top-up for one class type.
type MonthlySubscription struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"usuario"`
	ClassTypeID     string     `db:"class_type_id" json:"tipoClase"`
	Status          string     `db:"status" json:"status"`
	AutoRenewAmount int        `db:"auto_renew_amount" json:"autoRenewAmount"`
	LastRenewalDate *time.Time `db:"last_renewal_date" json:"lastRenewalDate,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// DueForRenewal reports whether the subscription should be topped up for the
// month containing now: automatic status and no renewal stamped within that
// month. This check is what makes the renewal job idempotent per month.
func (s *MonthlySubscription) DueForRenewal(now time.Time) bool {
	if s.Status != SubscriptionAutomatica {
		return false
	}
	if s.LastRenewalDate == nil {
		return true
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.LastRenewalDate.Before(monthStart)
}
