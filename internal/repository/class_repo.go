package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"app/internal/apperr"
	"app/internal/model"

	"github.com/google/uuid"
)

// EnrollmentRow is one persisted enrollment: who, which credit type was
// debited (nil for free-pass and legacy rows) and whether a free pass
// covered the enrollment. Detail entries (inscripcionesDetalle) are the
// subset of rows with a recorded credit type.
type EnrollmentRow struct {
	UserID       string
	CreditTypeID *string
	FreePass     bool
}

// ClassFilter narrows class listings.
type ClassFilter struct {
	From        *time.Time
	To          *time.Time
	ClassTypeID string
	States      []string
	Kind        string
}

// FamilyKey identifies a recurring-class family for bulk operations:
// instances sharing name, class type and start time.
type FamilyKey struct {
	Name        string
	ClassTypeID string
	StartTime   string
}

// ClassUpdate carries the field-level changes of a bulk family update.
// Nil pointers leave the column untouched.
type ClassUpdate struct {
	Name      *string
	Teacher   *string
	Capacity  *int
	StartTime *string
	EndTime   *string
}

// ClassRepository persists class instances together with their enrollment
// and waitlist rows. Enrollment mutations lock the class row so the
// capacity check and the insert are atomic; the user aggregate is still
// written separately by the service layer.
type ClassRepository interface {
	Create(ctx context.Context, c *model.Class) error
	CreateBatch(ctx context.Context, cs []*model.Class) error
	GetByID(ctx context.Context, id string) (*model.Class, error)
	List(ctx context.Context, f ClassFilter) ([]model.Class, error)
	Update(ctx context.Context, c *model.Class) error
	SetState(ctx context.Context, id, state string) error
	Delete(ctx context.Context, id string) error

	ListByDate(ctx context.Context, day time.Time, state string) ([]model.Class, error)
	ListFamily(ctx context.Context, key FamilyKey, from time.Time) ([]model.Class, error)
	LastOfFamily(ctx context.Context, key FamilyKey) (*model.Class, error)
	ListByRule(ctx context.Context, rule string) ([]model.Class, error)
	ListRecurrenceRules(ctx context.Context) ([]string, error)
	UpdateFamily(ctx context.Context, key FamilyKey, from time.Time, u ClassUpdate) (int64, error)
	DeleteFamily(ctx context.Context, key FamilyKey, from time.Time) (int64, int, error)

	AddEnrollment(ctx context.Context, classID, userID string, creditTypeID *string, freePass bool) (nowFull bool, err error)
	RemoveEnrollment(ctx context.Context, classID, userID string) (row *EnrollmentRow, wasFull bool, err error)
	ClearEnrollments(ctx context.Context, classID string) ([]EnrollmentRow, error)
	AddToWaitlist(ctx context.Context, classID, userID string) error
	RemoveFromWaitlist(ctx context.Context, classID, userID string) error
}

type classRepo struct {
	db *sql.DB
}

func NewClassRepo(db *sql.DB) ClassRepository {
	return &classRepo{db: db}
}

const classColumns = `id, name, class_type_id, teacher, start_time, end_time, capacity, date,
	weekday, enrollment_kind, COALESCE(recurrence_rule, ''), state, created_at, updated_at`

func scanClass(row interface{ Scan(...any) error }) (*model.Class, error) {
	var c model.Class
	err := row.Scan(&c.ID, &c.Name, &c.ClassTypeID, &c.Teacher, &c.StartTime, &c.EndTime,
		&c.Capacity, &c.Date, &c.Weekday, &c.EnrollmentKind, &c.RecurrenceRule, &c.State,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *classRepo) Create(ctx context.Context, c *model.Class) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `INSERT INTO classes
              (id, name, class_type_id, teacher, start_time, end_time, capacity, date, weekday, enrollment_kind, recurrence_rule, state)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
              RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		c.ID, c.Name, c.ClassTypeID, c.Teacher, c.StartTime, c.EndTime, c.Capacity,
		c.Date, c.Weekday, c.EnrollmentKind, c.RecurrenceRule, c.State).
		Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *classRepo) CreateBatch(ctx context.Context, cs []*model.Class) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO classes
              (id, name, class_type_id, teacher, start_time, end_time, capacity, date, weekday, enrollment_kind, recurrence_rule, state)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`
	for _, c := range cs {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.Name, c.ClassTypeID, c.Teacher, c.StartTime, c.EndTime, c.Capacity,
			c.Date, c.Weekday, c.EnrollmentKind, c.RecurrenceRule, c.State); err != nil {
			return fmt.Errorf("batch insert failed at %s: %w", c.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

func (r *classRepo) GetByID(ctx context.Context, id string) (*model.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	c, err := scanClass(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLists(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *classRepo) loadLists(ctx context.Context, c *model.Class) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, credit_type_id, free_pass FROM class_enrollments WHERE class_id = $1 ORDER BY created_at`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e EnrollmentRow
		if err := rows.Scan(&e.UserID, &e.CreditTypeID, &e.FreePass); err != nil {
			return err
		}
		c.Enrolled = append(c.Enrolled, e.UserID)
		if e.CreditTypeID != nil {
			c.Detalles = append(c.Detalles, model.EnrollmentDetail{UserID: e.UserID, TipoCreditoUsed: e.CreditTypeID})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	wrows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM class_waitlist WHERE class_id = $1 ORDER BY created_at`, c.ID)
	if err != nil {
		return err
	}
	defer wrows.Close()
	for wrows.Next() {
		var id string
		if err := wrows.Scan(&id); err != nil {
			return err
		}
		c.Waitlist = append(c.Waitlist, id)
	}
	return wrows.Err()
}

func (r *classRepo) queryClasses(ctx context.Context, query string, args ...any) ([]model.Class, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadLists(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *classRepo) List(ctx context.Context, f ClassFilter) ([]model.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.From != nil {
		query += ` AND date >= ` + arg(*f.From)
	}
	if f.To != nil {
		query += ` AND date <= ` + arg(*f.To)
	}
	if f.ClassTypeID != "" {
		query += ` AND class_type_id = ` + arg(f.ClassTypeID)
	}
	if f.Kind != "" {
		query += ` AND enrollment_kind = ` + arg(f.Kind)
	}
	if len(f.States) > 0 {
		query += ` AND state = ANY(` + arg(f.States) + `)`
	}
	query += ` ORDER BY date, start_time`
	return r.queryClasses(ctx, query, args...)
}

func (r *classRepo) Update(ctx context.Context, c *model.Class) error {
	query := `UPDATE classes
              SET name = $2, teacher = $3, start_time = $4, end_time = $5, capacity = $6,
                  date = $7, weekday = $8, state = $9, updated_at = now()
              WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Teacher, c.StartTime, c.EndTime,
		c.Capacity, c.Date, c.Weekday, c.State)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *classRepo) SetState(ctx context.Context, id, state string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE classes SET state = $2, updated_at = now() WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *classRepo) Delete(ctx context.Context, id string) error {
	// Enrollment and waitlist rows cascade; the denormalized user list is
	// cleaned up by the service before this call.
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *classRepo) ListByDate(ctx context.Context, day time.Time, state string) ([]model.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes
              WHERE date::date = $1::date AND state = $2 ORDER BY start_time`
	return r.queryClasses(ctx, query, day, state)
}

func (r *classRepo) ListFamily(ctx context.Context, key FamilyKey, from time.Time) ([]model.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes
              WHERE name = $1 AND class_type_id = $2 AND start_time = $3 AND date >= $4
              ORDER BY date`
	return r.queryClasses(ctx, query, key.Name, key.ClassTypeID, key.StartTime, from)
}

func (r *classRepo) LastOfFamily(ctx context.Context, key FamilyKey) (*model.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes
              WHERE name = $1 AND class_type_id = $2 AND start_time = $3
              ORDER BY date DESC LIMIT 1`
	c, err := scanClass(r.db.QueryRowContext(ctx, query, key.Name, key.ClassTypeID, key.StartTime))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *classRepo) ListByRule(ctx context.Context, rule string) ([]model.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE recurrence_rule = $1 ORDER BY date`
	return r.queryClasses(ctx, query, rule)
}

func (r *classRepo) ListRecurrenceRules(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT recurrence_rule FROM classes WHERE recurrence_rule IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []string
	for rows.Next() {
		var rule string
		if err := rows.Scan(&rule); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *classRepo) UpdateFamily(ctx context.Context, key FamilyKey, from time.Time, u ClassUpdate) (int64, error) {
	query := `UPDATE classes SET updated_at = now()`
	args := []any{key.Name, key.ClassTypeID, key.StartTime, from}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if u.Name != nil {
		query += `, name = ` + arg(*u.Name)
	}
	if u.Teacher != nil {
		query += `, teacher = ` + arg(*u.Teacher)
	}
	if u.Capacity != nil {
		query += `, capacity = ` + arg(*u.Capacity)
	}
	if u.StartTime != nil {
		query += `, start_time = ` + arg(*u.StartTime)
	}
	if u.EndTime != nil {
		query += `, end_time = ` + arg(*u.EndTime)
	}
	query += ` WHERE name = $1 AND class_type_id = $2 AND start_time = $3 AND date >= $4`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteFamily removes every future instance of the family and returns the
// number of rows deleted plus the summed capacity (for credit-total
// adjustment). Administrative cleanup: no per-user refunds here.
func (r *classRepo) DeleteFamily(ctx context.Context, key FamilyKey, from time.Time) (int64, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var capacitySum sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(capacity), 0) FROM classes
         WHERE name = $1 AND class_type_id = $2 AND start_time = $3 AND date >= $4`,
		key.Name, key.ClassTypeID, key.StartTime, from).Scan(&capacitySum)
	if err != nil {
		return 0, 0, err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM user_classes WHERE class_id IN (
            SELECT id FROM classes WHERE name = $1 AND class_type_id = $2 AND start_time = $3 AND date >= $4)`,
		key.Name, key.ClassTypeID, key.StartTime, from)
	if err != nil {
		return 0, 0, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM classes WHERE name = $1 AND class_type_id = $2 AND start_time = $3 AND date >= $4`,
		key.Name, key.ClassTypeID, key.StartTime, from)
	if err != nil {
		return 0, 0, err
	}
	n, _ := res.RowsAffected()
	return n, int(capacitySum.Int64), tx.Commit()
}

// AddEnrollment inserts an enrollment after re-checking state and capacity
// under a row lock. The service pre-validates, this re-check closes the race
// where two requests contend for the last seat.
func (r *classRepo) AddEnrollment(ctx context.Context, classID, userID string, creditTypeID *string, freePass bool) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var capacity int
	var state string
	err = tx.QueryRowContext(ctx,
		`SELECT capacity, state FROM classes WHERE id = $1 FOR UPDATE`, classID).Scan(&capacity, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	if err != nil {
		return false, err
	}
	switch state {
	case model.ClassStateCancelled:
		return false, apperr.New(apperr.KindStateConflict, "la clase está cancelada")
	case model.ClassStateFull:
		return false, apperr.New(apperr.KindStateConflict, "el turno ya está lleno")
	}

	var enrolled int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM class_enrollments WHERE class_id = $1`, classID).Scan(&enrolled); err != nil {
		return false, err
	}
	if enrolled >= capacity {
		return false, apperr.New(apperr.KindStateConflict, "el turno ya está lleno")
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO class_enrollments (class_id, user_id, credit_type_id, free_pass)
         VALUES ($1, $2, $3, $4) ON CONFLICT (class_id, user_id) DO NOTHING`,
		classID, userID, creditTypeID, freePass)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, apperr.New(apperr.KindStateConflict, "el usuario ya está inscrito en esta clase")
	}

	nowFull := enrolled+1 >= capacity
	if nowFull {
		if _, err := tx.ExecContext(ctx,
			`UPDATE classes SET state = $2, updated_at = now() WHERE id = $1`,
			classID, model.ClassStateFull); err != nil {
			return false, err
		}
	}
	return nowFull, tx.Commit()
}

// RemoveEnrollment deletes the user's enrollment row and demotes a full
// class back to activa. Returns the removed row so the caller can refund
// the exact credit type that was debited.
func (r *classRepo) RemoveEnrollment(ctx context.Context, classID, userID string) (*EnrollmentRow, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM classes WHERE id = $1 FOR UPDATE`, classID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	if err != nil {
		return nil, false, err
	}

	row := EnrollmentRow{UserID: userID}
	err = tx.QueryRowContext(ctx,
		`DELETE FROM class_enrollments WHERE class_id = $1 AND user_id = $2
         RETURNING credit_type_id, free_pass`, classID, userID).
		Scan(&row.CreditTypeID, &row.FreePass)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, apperr.New(apperr.KindStateConflict, "el usuario no está inscrito en esta clase")
	}
	if err != nil {
		return nil, false, err
	}

	wasFull := state == model.ClassStateFull
	if wasFull {
		if _, err := tx.ExecContext(ctx,
			`UPDATE classes SET state = $2, updated_at = now() WHERE id = $1`,
			classID, model.ClassStateActive); err != nil {
			return nil, false, err
		}
	}
	return &row, wasFull, tx.Commit()
}

// ClearEnrollments removes every enrollment row of the class and returns
// them for compensating refunds.
func (r *classRepo) ClearEnrollments(ctx context.Context, classID string) ([]EnrollmentRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM class_enrollments WHERE class_id = $1 RETURNING user_id, credit_type_id, free_pass`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnrollmentRow
	for rows.Next() {
		var e EnrollmentRow
		if err := rows.Scan(&e.UserID, &e.CreditTypeID, &e.FreePass); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *classRepo) AddToWaitlist(ctx context.Context, classID, userID string) error {
	// Re-subscribing is a no-op success.
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO class_waitlist (class_id, user_id) VALUES ($1, $2)
         ON CONFLICT (class_id, user_id) DO NOTHING`, classID, userID)
	return err
}

func (r *classRepo) RemoveFromWaitlist(ctx context.Context, classID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM class_waitlist WHERE class_id = $1 AND user_id = $2`, classID, userID)
	return err
}
