package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
)

// UserRepository persists the credit-relevant side of the user aggregate:
// per-type balances, the denormalized enrolled-class list, plans,
// subscriptions and the free-pass window.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	CreditBalances(ctx context.Context, userID string) (map[string]int, error)
	// AdjustCredit shifts a balance by delta without a floor; admin manual
	// adjustments and refunds go through here.
	AdjustCredit(ctx context.Context, userID, classTypeID string, delta int) error
	// DebitCredit decrements a balance only when it is positive. Returns
	// false when no credit was available to debit.
	DebitCredit(ctx context.Context, userID, classTypeID string) (bool, error)
	AddEnrolledClass(ctx context.Context, userID, classID string) error
	RemoveEnrolledClass(ctx context.Context, userID, classID string) error
	SetFreePass(ctx context.Context, userID string, desde, hasta *time.Time) error

	CreatePlan(ctx context.Context, p *model.Plan) error
	GetPlan(ctx context.Context, planID string) (*model.Plan, error)
	DeletePlan(ctx context.Context, planID string) error
	ListPlans(ctx context.Context, userID string) ([]model.Plan, error)

	CreateSubscription(ctx context.Context, s *model.MonthlySubscription) error
	DeleteSubscription(ctx context.Context, subID string) error
	ListSubscriptions(ctx context.Context, userID string) ([]model.MonthlySubscription, error)
	ListAutomaticSubscriptions(ctx context.Context) ([]model.MonthlySubscription, error)
	StampRenewal(ctx context.Context, subID string, at time.Time) error
	// ResetCreditsForType zeroes every user balance of the given type.
	// Used by the monthly reset job for resetMensual types.
	ResetCreditsForType(ctx context.Context, classTypeID string) (int64, error)
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	query := `SELECT id, name, email, role, pase_libre_desde, pase_libre_hasta, created_at, updated_at
              FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role,
		&u.PaseLibreDesde, &u.PaseLibreHasta, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	balances, err := r.CreditBalances(ctx, id)
	if err != nil {
		return nil, err
	}
	u.CreditosPorTipo = balances

	rows, err := r.db.QueryContext(ctx,
		`SELECT class_id FROM user_classes WHERE user_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var classID string
		if err := rows.Scan(&classID); err != nil {
			return nil, err
		}
		u.ClasesInscritas = append(u.ClasesInscritas, classID)
	}
	return &u, rows.Err()
}

func (r *userRepo) CreditBalances(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT class_type_id, balance FROM user_credits WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[string]int)
	for rows.Next() {
		var typeID string
		var balance int
		if err := rows.Scan(&typeID, &balance); err != nil {
			return nil, err
		}
		balances[typeID] = balance
	}
	return balances, rows.Err()
}

func (r *userRepo) AdjustCredit(ctx context.Context, userID, classTypeID string, delta int) error {
	query := `INSERT INTO user_credits (user_id, class_type_id, balance)
              VALUES ($1, $2, $3)
              ON CONFLICT (user_id, class_type_id) DO UPDATE SET balance = user_credits.balance + $3`
	_, err := r.db.ExecContext(ctx, query, userID, classTypeID, delta)
	return err
}

func (r *userRepo) DebitCredit(ctx context.Context, userID, classTypeID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_credits SET balance = balance - 1
         WHERE user_id = $1 AND class_type_id = $2 AND balance > 0`, userID, classTypeID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *userRepo) AddEnrolledClass(ctx context.Context, userID, classID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_classes (user_id, class_id) VALUES ($1, $2)
         ON CONFLICT (user_id, class_id) DO NOTHING`, userID, classID)
	return err
}

func (r *userRepo) RemoveEnrolledClass(ctx context.Context, userID, classID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_classes WHERE user_id = $1 AND class_id = $2`, userID, classID)
	return err
}

func (r *userRepo) SetFreePass(ctx context.Context, userID string, desde, hasta *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET pase_libre_desde = $2, pase_libre_hasta = $3, updated_at = now() WHERE id = $1`,
		userID, desde, hasta)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *userRepo) CreatePlan(ctx context.Context, p *model.Plan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `INSERT INTO user_plans (id, user_id, class_type_id, weekdays, start_time, end_time, desde, hasta)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`
	return r.db.QueryRowContext(ctx, query, p.ID, p.UserID, p.ClassTypeID,
		strings.Join(p.Weekdays, ","), p.StartTime, p.EndTime, p.Desde, p.Hasta).Scan(&p.CreatedAt)
}

func (r *userRepo) GetPlan(ctx context.Context, planID string) (*model.Plan, error) {
	var p model.Plan
	var weekdays string
	query := `SELECT id, user_id, class_type_id, weekdays, start_time, end_time, desde, hasta, created_at
              FROM user_plans WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, planID).Scan(&p.ID, &p.UserID, &p.ClassTypeID,
		&weekdays, &p.StartTime, &p.EndTime, &p.Desde, &p.Hasta, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Weekdays = strings.Split(weekdays, ",")
	return &p, nil
}

func (r *userRepo) DeletePlan(ctx context.Context, planID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_plans WHERE id = $1`, planID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *userRepo) ListPlans(ctx context.Context, userID string) ([]model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, class_type_id, weekdays, start_time, end_time, desde, hasta, created_at
         FROM user_plans WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []model.Plan
	for rows.Next() {
		var p model.Plan
		var weekdays string
		if err := rows.Scan(&p.ID, &p.UserID, &p.ClassTypeID, &weekdays,
			&p.StartTime, &p.EndTime, &p.Desde, &p.Hasta, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Weekdays = strings.Split(weekdays, ",")
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *userRepo) CreateSubscription(ctx context.Context, s *model.MonthlySubscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `INSERT INTO user_subscriptions (id, user_id, class_type_id, status, auto_renew_amount, last_renewal_date)
              VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	return r.db.QueryRowContext(ctx, query, s.ID, s.UserID, s.ClassTypeID, s.Status,
		s.AutoRenewAmount, s.LastRenewalDate).Scan(&s.CreatedAt)
}

func (r *userRepo) DeleteSubscription(ctx context.Context, subID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_subscriptions WHERE id = $1`, subID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const subscriptionColumns = `id, user_id, class_type_id, status, auto_renew_amount, last_renewal_date, created_at`

func (r *userRepo) scanSubscriptions(rows *sql.Rows) ([]model.MonthlySubscription, error) {
	defer rows.Close()
	var subs []model.MonthlySubscription
	for rows.Next() {
		var s model.MonthlySubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.ClassTypeID, &s.Status,
			&s.AutoRenewAmount, &s.LastRenewalDate, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *userRepo) ListSubscriptions(ctx context.Context, userID string) ([]model.MonthlySubscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return r.scanSubscriptions(rows)
}

func (r *userRepo) ListAutomaticSubscriptions(ctx context.Context) ([]model.MonthlySubscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE status = $1 ORDER BY created_at`,
		model.SubscriptionAutomatica)
	if err != nil {
		return nil, err
	}
	return r.scanSubscriptions(rows)
}

func (r *userRepo) StampRenewal(ctx context.Context, subID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_subscriptions SET last_renewal_date = $2 WHERE id = $1`, subID, at)
	return err
}

func (r *userRepo) ResetCreditsForType(ctx context.Context, classTypeID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_credits SET balance = 0 WHERE class_type_id = $1 AND balance <> 0`, classTypeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
