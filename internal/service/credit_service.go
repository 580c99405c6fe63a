package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// CreditService is the credit ledger: per-type balances plus the universal
// type and the free-pass window. Debit resolution order on enrollment:
// free pass, then the class's own type, then universal, then rejection.
type CreditService interface {
	// ResolveDebit picks the credit type to debit for enrolling the user in
	// a class of the given type on the given date. Returns (nil, false, nil)
	// semantics via DebitResolution.
	ResolveDebit(ctx context.Context, user *model.User, classTypeID string, classDate time.Time) (*DebitResolution, error)
	// Debit performs the decrement chosen by ResolveDebit. Returns false
	// when the balance was raced to zero in between.
	Debit(ctx context.Context, userID, classTypeID string) (bool, error)
	// Refund restores one credit of the given type.
	Refund(ctx context.Context, userID, classTypeID string) error
	// AdjustManual applies an admin adjustment. A decrease that would leave
	// the balance negative is rejected, never clamped.
	AdjustManual(ctx context.Context, userID, classTypeID string, delta int) error
	Balances(ctx context.Context, userID string) (map[string]int, error)

	SetFreePass(ctx context.Context, userID string, desde, hasta time.Time) error
	ClearFreePass(ctx context.Context, userID string) error

	CreateSubscription(ctx context.Context, s *model.MonthlySubscription) error
	CancelSubscription(ctx context.Context, subID string) error
	ListSubscriptions(ctx context.Context, userID string) ([]model.MonthlySubscription, error)
	// RenewMonthlySubscriptions tops up every automatic subscription not yet
	// renewed this month. Idempotent per month via the lastRenewalDate check.
	RenewMonthlySubscriptions(ctx context.Context, now time.Time) (int, error)
	// ResetMonthlyCredits zeroes user balances for resetMensual class types,
	// at most once per calendar month.
	ResetMonthlyCredits(ctx context.Context, now time.Time) (int, error)
}

// DebitResolution describes the outcome of debit resolution. A nil
// CreditTypeID with FreePass=true means no credit is consumed and no
// detail entry must be written.
type DebitResolution struct {
	CreditTypeID *string
	FreePass     bool
}

type creditService struct {
	userRepo repository.UserRepository
	typeRepo repository.ClassTypeRepository
	jobRepo  repository.JobRunRepository
	logger   zerolog.Logger
}

func NewCreditService(userRepo repository.UserRepository, typeRepo repository.ClassTypeRepository,
	jobRepo repository.JobRunRepository, logger zerolog.Logger) CreditService {
	return &creditService{
		userRepo: userRepo,
		typeRepo: typeRepo,
		jobRepo:  jobRepo,
		logger:   logger.With().Str("service", "CreditService").Logger(),
	}
}

func (s *creditService) ResolveDebit(ctx context.Context, user *model.User, classTypeID string, classDate time.Time) (*DebitResolution, error) {
	if user.FreePassCovers(classDate) {
		return &DebitResolution{FreePass: true}, nil
	}

	balances := user.CreditosPorTipo
	if balances == nil {
		var err error
		balances, err = s.userRepo.CreditBalances(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}

	if balances[classTypeID] > 0 {
		typeID := classTypeID
		return &DebitResolution{CreditTypeID: &typeID}, nil
	}

	universal, err := s.typeRepo.GetUniversal(ctx)
	if err != nil {
		return nil, err
	}
	if universal != nil && balances[universal.ID] > 0 {
		typeID := universal.ID
		return &DebitResolution{CreditTypeID: &typeID}, nil
	}

	if user.FreePassExpiredBefore(classDate) {
		return nil, apperr.Newf(apperr.KindInsufficientCredit,
			"tu pase libre vence antes de esta clase (%s)", classDate.Format("02/01/2006"))
	}
	return nil, apperr.New(apperr.KindInsufficientCredit,
		"no tienes créditos de este tipo ni créditos universales disponibles")
}

func (s *creditService) Debit(ctx context.Context, userID, classTypeID string) (bool, error) {
	return s.userRepo.DebitCredit(ctx, userID, classTypeID)
}

func (s *creditService) Refund(ctx context.Context, userID, classTypeID string) error {
	return s.userRepo.AdjustCredit(ctx, userID, classTypeID, 1)
}

func (s *creditService) AdjustManual(ctx context.Context, userID, classTypeID string, delta int) error {
	if delta == 0 {
		return apperr.New(apperr.KindValidation, "el ajuste de créditos no puede ser cero")
	}
	ct, err := s.typeRepo.GetByID(ctx, classTypeID)
	if err != nil {
		return err
	}
	if ct == nil {
		return apperr.New(apperr.KindNotFound, "tipo de clase no encontrado")
	}
	if delta < 0 {
		balances, err := s.userRepo.CreditBalances(ctx, userID)
		if err != nil {
			return err
		}
		if balances[classTypeID]+delta < 0 {
			return apperr.Newf(apperr.KindValidation,
				"el usuario sólo tiene %d créditos de %s, no se puede quitar %d",
				balances[classTypeID], ct.Name, -delta)
		}
	}
	return s.userRepo.AdjustCredit(ctx, userID, classTypeID, delta)
}

func (s *creditService) Balances(ctx context.Context, userID string) (map[string]int, error) {
	return s.userRepo.CreditBalances(ctx, userID)
}

func (s *creditService) SetFreePass(ctx context.Context, userID string, desde, hasta time.Time) error {
	if hasta.Before(desde) {
		return apperr.New(apperr.KindValidation, "la fecha de fin del pase libre es anterior a la de inicio")
	}
	return s.userRepo.SetFreePass(ctx, userID, &desde, &hasta)
}

func (s *creditService) ClearFreePass(ctx context.Context, userID string) error {
	return s.userRepo.SetFreePass(ctx, userID, nil, nil)
}

func (s *creditService) CreateSubscription(ctx context.Context, sub *model.MonthlySubscription) error {
	if sub.Status != model.SubscriptionManual && sub.Status != model.SubscriptionAutomatica {
		return apperr.Newf(apperr.KindValidation, "estado de suscripción inválido: %s", sub.Status)
	}
	if sub.AutoRenewAmount <= 0 {
		return apperr.New(apperr.KindValidation, "la cantidad de renovación debe ser mayor a cero")
	}
	ct, err := s.typeRepo.GetByID(ctx, sub.ClassTypeID)
	if err != nil {
		return err
	}
	if ct == nil {
		return apperr.New(apperr.KindNotFound, "tipo de clase no encontrado")
	}
	return s.userRepo.CreateSubscription(ctx, sub)
}

func (s *creditService) CancelSubscription(ctx context.Context, subID string) error {
	if err := s.userRepo.DeleteSubscription(ctx, subID); err != nil {
		return apperr.Wrap(apperr.KindNotFound, "suscripción no encontrada", err)
	}
	return nil
}

func (s *creditService) ListSubscriptions(ctx context.Context, userID string) ([]model.MonthlySubscription, error) {
	return s.userRepo.ListSubscriptions(ctx, userID)
}

func (s *creditService) RenewMonthlySubscriptions(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.userRepo.ListAutomaticSubscriptions(ctx)
	if err != nil {
		return 0, err
	}
	renewed := 0
	for i := range subs {
		sub := &subs[i]
		if !sub.DueForRenewal(now) {
			continue
		}
		if err := s.userRepo.AdjustCredit(ctx, sub.UserID, sub.ClassTypeID, sub.AutoRenewAmount); err != nil {
			s.logger.Error().Err(err).Str("subscription", sub.ID).Msg("Failed to credit subscription renewal")
			continue
		}
		if err := s.userRepo.StampRenewal(ctx, sub.ID, now); err != nil {
			s.logger.Error().Err(err).Str("subscription", sub.ID).Msg("Failed to stamp renewal date")
			continue
		}
		renewed++
	}
	return renewed, nil
}

func (s *creditService) ResetMonthlyCredits(ctx context.Context, now time.Time) (int, error) {
	period := fmt.Sprintf("%04d-%02d", now.Year(), int(now.Month()))
	done, err := s.jobRepo.HasRun(ctx, "credit_reset", period)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, nil
	}

	types, err := s.typeRepo.List(ctx)
	if err != nil {
		return 0, err
	}
	reset := 0
	for i := range types {
		if !types[i].ResetMensual {
			continue
		}
		n, err := s.userRepo.ResetCreditsForType(ctx, types[i].ID)
		if err != nil {
			return reset, err
		}
		reset += int(n)
	}
	if err := s.jobRepo.MarkRun(ctx, "credit_reset", period); err != nil {
		return reset, err
	}
	return reset, nil
}
