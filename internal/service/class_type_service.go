package service

import (
	"context"
	"database/sql"
	"errors"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// ClassTypeService manages the class-type catalog. The universal type is
// provisioned at startup and cannot be edited or removed through here.
type ClassTypeService interface {
	Create(ctx context.Context, t *model.ClassType) error
	Get(ctx context.Context, id string) (*model.ClassType, error)
	List(ctx context.Context) ([]model.ClassType, error)
	Update(ctx context.Context, t *model.ClassType) error
	// Delete removes a class type with no remaining instances.
	Delete(ctx context.Context, id string) error
}

type classTypeService struct {
	typeRepo repository.ClassTypeRepository
	logger   zerolog.Logger
}

func NewClassTypeService(typeRepo repository.ClassTypeRepository, logger zerolog.Logger) ClassTypeService {
	return &classTypeService{
		typeRepo: typeRepo,
		logger:   logger.With().Str("service", "ClassTypeService").Logger(),
	}
}

func (s *classTypeService) Create(ctx context.Context, t *model.ClassType) error {
	if t.Name == model.UniversalTypeName {
		return apperr.New(apperr.KindValidation, "el nombre Universal está reservado")
	}
	t.EsUniversal = false
	if err := s.typeRepo.Create(ctx, t); err != nil {
		return err
	}
	t.CreditosDisponibles = t.ClampDisponibles()
	return nil
}

func (s *classTypeService) Get(ctx context.Context, id string) (*model.ClassType, error) {
	t, err := s.typeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.New(apperr.KindNotFound, "tipo de clase no encontrado")
	}
	t.CreditosDisponibles = t.ClampDisponibles()
	return t, nil
}

func (s *classTypeService) List(ctx context.Context) ([]model.ClassType, error) {
	types, err := s.typeRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range types {
		types[i].CreditosDisponibles = types[i].ClampDisponibles()
	}
	return types, nil
}

func (s *classTypeService) Update(ctx context.Context, t *model.ClassType) error {
	existing, err := s.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing.EsUniversal {
		return apperr.New(apperr.KindValidation, "el tipo universal no se puede modificar")
	}
	if err := s.typeRepo.Update(ctx, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "tipo de clase no encontrado")
		}
		return err
	}
	return nil
}

func (s *classTypeService) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.EsUniversal {
		return apperr.New(apperr.KindValidation, "el tipo universal no se puede eliminar")
	}
	n, err := s.typeRepo.CountInstances(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Newf(apperr.KindStateConflict,
			"el tipo tiene %d clases asociadas, eliminalas primero", n)
	}
	if err := s.typeRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "tipo de clase no encontrado")
		}
		return err
	}
	return nil
}
