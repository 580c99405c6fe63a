package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/google/uuid"
)

// ClassTypeRepository persists class types (TipoClase). CreditosDisponibles
// is always computed at read time: creditos_totales minus the credits
// currently held by users of the type. It is never stored.
type ClassTypeRepository interface {
	Create(ctx context.Context, t *model.ClassType) error
	GetByID(ctx context.Context, id string) (*model.ClassType, error)
	List(ctx context.Context) ([]model.ClassType, error)
	Update(ctx context.Context, t *model.ClassType) error
	Delete(ctx context.Context, id string) error
	GetUniversal(ctx context.Context) (*model.ClassType, error)
	// EnsureUniversal provisions the universal type if it does not exist.
	// Guarded by the unique name index, so concurrent startup of two
	// processes cannot create two universal types.
	EnsureUniversal(ctx context.Context) error
	// AdjustTotals shifts creditos_totales by delta (instance capacity
	// changes are the only callers).
	AdjustTotals(ctx context.Context, id string, delta int) error
	CountInstances(ctx context.Context, id string) (int, error)
}

type classTypeRepo struct {
	db *sql.DB
}

func NewClassTypeRepo(db *sql.DB) ClassTypeRepository {
	return &classTypeRepo{db: db}
}

const classTypeColumns = `
	ct.id, ct.name, ct.description, ct.price, ct.reset_mensual, ct.es_universal,
	ct.creditos_totales,
	ct.creditos_totales - COALESCE((SELECT SUM(uc.balance) FROM user_credits uc WHERE uc.class_type_id = ct.id), 0),
	ct.created_at, ct.updated_at`

func scanClassType(row interface{ Scan(...any) error }) (*model.ClassType, error) {
	var t model.ClassType
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Price, &t.ResetMensual, &t.EsUniversal,
		&t.CreditosTotales, &t.CreditosDisponibles, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *classTypeRepo) Create(ctx context.Context, t *model.ClassType) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `INSERT INTO class_types (id, name, description, price, reset_mensual, es_universal)
              VALUES ($1, $2, $3, $4, $5, false)
              RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, t.ID, t.Name, t.Description, t.Price, t.ResetMensual).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *classTypeRepo) GetByID(ctx context.Context, id string) (*model.ClassType, error) {
	query := `SELECT ` + classTypeColumns + ` FROM class_types ct WHERE ct.id = $1`
	t, err := scanClassType(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *classTypeRepo) GetUniversal(ctx context.Context) (*model.ClassType, error) {
	query := `SELECT ` + classTypeColumns + ` FROM class_types ct WHERE ct.es_universal = true`
	t, err := scanClassType(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *classTypeRepo) EnsureUniversal(ctx context.Context) error {
	query := `INSERT INTO class_types (id, name, description, price, reset_mensual, es_universal)
              VALUES ($1, $2, 'Créditos válidos para cualquier clase', 0, false, true)
              ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), model.UniversalTypeName); err != nil {
		return fmt.Errorf("failed to provision universal class type: %w", err)
	}
	return nil
}

func (r *classTypeRepo) List(ctx context.Context) ([]model.ClassType, error) {
	query := `SELECT ` + classTypeColumns + ` FROM class_types ct ORDER BY ct.name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []model.ClassType
	for rows.Next() {
		t, err := scanClassType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	return types, rows.Err()
}

func (r *classTypeRepo) Update(ctx context.Context, t *model.ClassType) error {
	query := `UPDATE class_types
              SET name = $2, description = $3, price = $4, reset_mensual = $5, updated_at = now()
              WHERE id = $1 AND es_universal = false`
	res, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.Description, t.Price, t.ResetMensual)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *classTypeRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_types WHERE id = $1 AND es_universal = false`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *classTypeRepo) AdjustTotals(ctx context.Context, id string, delta int) error {
	query := `UPDATE class_types SET creditos_totales = creditos_totales + $2, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, delta)
	return err
}

func (r *classTypeRepo) CountInstances(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes WHERE class_type_id = $1`, id).Scan(&n)
	return n, err
}
