package service

import (
	"context"
	"time"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/notify"
	"app/internal/recurrence"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// unenrollCutoff is how long before class start self-unenrollment closes.
const unenrollCutoff = time.Hour

// PlanInput defines a bulk plan enrollment: every activa instance of the
// class type matching the weekdays and time window inside the date range.
type PlanInput struct {
	UserID      string
	ClassTypeID string
	Weekdays    []string
	StartTime   string
	EndTime     string
	Desde       time.Time
	Hasta       time.Time
}

// EnrollmentService orchestrates enrollment, unenrollment, waitlists and
// bulk plan enrollment, settling the credit ledger together with every
// class mutation.
type EnrollmentService interface {
	// Enroll books the user into the instance. byAdmin marks the manual-add
	// path, which also removes the user from the instance's waitlist.
	Enroll(ctx context.Context, classID, userID string, byAdmin bool) (*model.Class, error)
	// Unenroll removes the user, refunding the credit type recorded at
	// enrollment. force (admin removal) bypasses the one-hour cutoff.
	Unenroll(ctx context.Context, classID, userID string, force bool) (*model.Class, error)
	SubscribeWaitlist(ctx context.Context, classID, userID string) error
	UnsubscribeWaitlist(ctx context.Context, classID, userID string) error
	// EnrollPlan enrolls the user into every matching instance. All
	// preconditions are validated before any enrollment is committed; a
	// mid-batch failure rolls completed enrollments back.
	EnrollPlan(ctx context.Context, in PlanInput) (*model.Plan, int, error)
	// RemovePlan deletes the plan and unenrolls the user from its future
	// matching instances.
	RemovePlan(ctx context.Context, userID, planID string) (int, error)
	ListPlans(ctx context.Context, userID string) ([]model.Plan, error)
	// ListEnrolledClasses resolves the user's denormalized enrolled-class ids
	// into full instances, skipping ids whose class no longer exists.
	ListEnrolledClasses(ctx context.Context, userID string) ([]model.Class, error)
}

type enrollmentService struct {
	classRepo    repository.ClassRepository
	typeRepo     repository.ClassTypeRepository
	userRepo     repository.UserRepository
	credits      CreditService
	dispatcher   notify.Dispatcher
	utcOffsetMin int
	now          func() time.Time
	logger       zerolog.Logger
}

func NewEnrollmentService(classRepo repository.ClassRepository, typeRepo repository.ClassTypeRepository,
	userRepo repository.UserRepository, credits CreditService, dispatcher notify.Dispatcher,
	utcOffsetMin int, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		classRepo:    classRepo,
		typeRepo:     typeRepo,
		userRepo:     userRepo,
		credits:      credits,
		dispatcher:   dispatcher,
		utcOffsetMin: utcOffsetMin,
		now:          time.Now,
		logger:       logger.With().Str("service", "EnrollmentService").Logger(),
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, classID, userID string, byAdmin bool) (*model.Class, error) {
	c, err := s.classRepo.GetByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	switch c.State {
	case model.ClassStateCancelled:
		return nil, apperr.New(apperr.KindStateConflict, "la clase está cancelada")
	case model.ClassStateFull:
		return nil, apperr.New(apperr.KindStateConflict, "el turno ya está lleno")
	}
	if c.IsEnrolled(userID) {
		return nil, apperr.New(apperr.KindStateConflict, "el usuario ya está inscrito en esta clase")
	}
	if c.ClassTypeID == "" {
		return nil, apperr.New(apperr.KindInternal, "la clase no tiene un tipo asociado")
	}
	ct, err := s.typeRepo.GetByID(ctx, c.ClassTypeID)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, apperr.New(apperr.KindInternal, "el tipo de la clase no existe")
	}
	if ct.EsUniversal {
		return nil, apperr.New(apperr.KindValidation,
			"los créditos universales no se reservan directamente")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.KindNotFound, "usuario no encontrado")
	}

	res, err := s.credits.ResolveDebit(ctx, user, c.ClassTypeID, c.Date)
	if err != nil {
		return nil, err
	}

	if _, err := s.classRepo.AddEnrollment(ctx, classID, userID, res.CreditTypeID, res.FreePass); err != nil {
		return nil, err
	}
	if res.CreditTypeID != nil {
		ok, err := s.credits.Debit(ctx, userID, *res.CreditTypeID)
		if err == nil && !ok {
			err = apperr.New(apperr.KindInsufficientCredit,
				"no tienes créditos de este tipo ni créditos universales disponibles")
		}
		if err != nil {
			// Compensate: the seat was taken but the debit failed.
			if _, _, rbErr := s.classRepo.RemoveEnrollment(ctx, classID, userID); rbErr != nil {
				s.logger.Error().Err(rbErr).Str("class", classID).Str("user", userID).
					Msg("Failed to roll back enrollment after debit failure")
			}
			return nil, err
		}
	}

	// Denormalized profile list lives on the user aggregate; a failure here
	// is logged, the enrollment itself already succeeded.
	if err := s.userRepo.AddEnrolledClass(ctx, userID, classID); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Str("class", classID).
			Msg("Failed to add class to user profile")
	}

	// Manual-add path only: a directly enrolled user leaves the waitlist.
	if byAdmin && c.IsWaitlisted(userID) {
		if err := s.classRepo.RemoveFromWaitlist(ctx, classID, userID); err != nil {
			s.logger.Error().Err(err).Str("user", userID).Str("class", classID).
				Msg("Failed to remove user from waitlist")
		}
	}

	return s.classRepo.GetByID(ctx, classID)
}

func (s *enrollmentService) Unenroll(ctx context.Context, classID, userID string, force bool) (*model.Class, error) {
	c, err := s.classRepo.GetByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	if !c.IsEnrolled(userID) {
		return nil, apperr.New(apperr.KindStateConflict, "el usuario no está inscrito en esta clase")
	}

	if !force {
		start := c.StartInstant(s.utcOffsetMin)
		cutoff := start.Add(-unenrollCutoff)
		if !s.now().Before(cutoff) {
			return nil, apperr.Newf(apperr.KindStateConflict,
				"sólo puedes darte de baja hasta una hora antes del inicio (%s)",
				cutoff.Format("02/01/2006 15:04"))
		}
	}

	row, wasFull, err := s.classRepo.RemoveEnrollment(ctx, classID, userID)
	if err != nil {
		return nil, err
	}

	// Refund the type actually debited; legacy rows without a detail record
	// fall back to the instance's nominal class type. Free-pass enrollments
	// consumed nothing and refund nothing.
	if !row.FreePass {
		typeID := c.ClassTypeID
		if row.CreditTypeID != nil {
			typeID = *row.CreditTypeID
		}
		if err := s.credits.Refund(ctx, userID, typeID); err != nil {
			s.logger.Error().Err(err).Str("user", userID).Str("class", classID).Msg("Failed to refund credit")
		}
	}

	if err := s.userRepo.RemoveEnrolledClass(ctx, userID, classID); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Str("class", classID).
			Msg("Failed to remove class from user profile")
	}

	// A freed seat is announced to the waitlist; nobody is auto-enrolled.
	if wasFull {
		for _, waitingID := range c.Waitlist {
			s.dispatcher.SendSingleNotification(ctx, model.Notification{
				UserID:         waitingID,
				Title:          "Se liberó un lugar",
				Message:        "Se liberó un lugar en " + c.Name + " del " + c.Date.Format("02/01/2006") + " a las " + c.StartTime + ".",
				Type:           model.NotificationSpotOpened,
				RelatedClassID: c.ID,
			})
		}
	}

	return s.classRepo.GetByID(ctx, classID)
}

func (s *enrollmentService) SubscribeWaitlist(ctx context.Context, classID, userID string) error {
	c, err := s.classRepo.GetByID(ctx, classID)
	if err != nil {
		return err
	}
	if c == nil {
		return apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	if c.State == model.ClassStateCancelled {
		return apperr.New(apperr.KindStateConflict, "la clase está cancelada")
	}
	if !c.IsFull() {
		return apperr.New(apperr.KindValidation, "la clase aún tiene lugares disponibles")
	}
	return s.classRepo.AddToWaitlist(ctx, classID, userID)
}

func (s *enrollmentService) UnsubscribeWaitlist(ctx context.Context, classID, userID string) error {
	return s.classRepo.RemoveFromWaitlist(ctx, classID, userID)
}

func (s *enrollmentService) matchingInstances(ctx context.Context, in PlanInput) ([]model.Class, error) {
	wanted := map[time.Weekday]bool{}
	for _, name := range in.Weekdays {
		if d, ok := recurrence.ParseWeekday(name); ok {
			wanted[d] = true
		}
	}
	if len(wanted) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no se indicó ningún día válido para el plan")
	}

	// Full instances stay in the match set: plan enrollment must reject them
	// explicitly and plan removal must still unenroll from them.
	all, err := s.classRepo.List(ctx, repository.ClassFilter{
		From:        &in.Desde,
		To:          &in.Hasta,
		ClassTypeID: in.ClassTypeID,
		States:      []string{model.ClassStateActive, model.ClassStateFull},
	})
	if err != nil {
		return nil, err
	}
	var matching []model.Class
	for i := range all {
		c := &all[i]
		if c.StartTime != in.StartTime {
			continue
		}
		if !wanted[c.Date.Weekday()] {
			continue
		}
		matching = append(matching, *c)
	}
	return matching, nil
}

func (s *enrollmentService) EnrollPlan(ctx context.Context, in PlanInput) (*model.Plan, int, error) {
	instances, err := s.matchingInstances(ctx, in)
	if err != nil {
		return nil, 0, err
	}
	if len(instances) == 0 {
		return nil, 0, apperr.New(apperr.KindValidation,
			"no hay clases que coincidan con el plan en el rango de fechas")
	}

	// All-or-nothing pre-check before any commit.
	for i := range instances {
		c := &instances[i]
		if c.IsFull() {
			return nil, 0, apperr.Newf(apperr.KindStateConflict,
				"la clase del %s ya está llena", c.Date.Format("02/01/2006"))
		}
		if c.IsEnrolled(in.UserID) {
			return nil, 0, apperr.Newf(apperr.KindStateConflict,
				"el usuario ya está inscrito en la clase del %s", c.Date.Format("02/01/2006"))
		}
	}

	// Commit per instance with an undo log: a failure rolls back every
	// enrollment already made.
	type done struct {
		classID string
	}
	var committed []done
	rollback := func() {
		for i := len(committed) - 1; i >= 0; i-- {
			if _, err := s.Unenroll(ctx, committed[i].classID, in.UserID, true); err != nil {
				s.logger.Error().Err(err).Str("class", committed[i].classID).Str("user", in.UserID).
					Msg("Failed to roll back plan enrollment")
			}
		}
	}
	for i := range instances {
		if _, err := s.Enroll(ctx, instances[i].ID, in.UserID, false); err != nil {
			rollback()
			return nil, 0, err
		}
		committed = append(committed, done{classID: instances[i].ID})
	}

	plan := &model.Plan{
		UserID:      in.UserID,
		ClassTypeID: in.ClassTypeID,
		Weekdays:    in.Weekdays,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Desde:       in.Desde,
		Hasta:       in.Hasta,
	}
	if err := s.userRepo.CreatePlan(ctx, plan); err != nil {
		rollback()
		return nil, 0, err
	}
	return plan, len(committed), nil
}

func (s *enrollmentService) RemovePlan(ctx context.Context, userID, planID string) (int, error) {
	plan, err := s.userRepo.GetPlan(ctx, planID)
	if err != nil {
		return 0, err
	}
	if plan == nil || plan.UserID != userID {
		return 0, apperr.New(apperr.KindNotFound, "plan no encontrado")
	}

	today := s.now()
	from := today
	if plan.Desde.After(today) {
		from = plan.Desde
	}
	instances, err := s.matchingInstances(ctx, PlanInput{
		UserID:      userID,
		ClassTypeID: plan.ClassTypeID,
		Weekdays:    plan.Weekdays,
		StartTime:   plan.StartTime,
		EndTime:     plan.EndTime,
		Desde:       from,
		Hasta:       plan.Hasta,
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range instances {
		if !instances[i].IsEnrolled(userID) {
			continue
		}
		if _, err := s.Unenroll(ctx, instances[i].ID, userID, true); err != nil {
			s.logger.Error().Err(err).Str("class", instances[i].ID).Str("user", userID).
				Msg("Failed to unenroll during plan removal")
			continue
		}
		removed++
	}
	if err := s.userRepo.DeletePlan(ctx, planID); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *enrollmentService) ListPlans(ctx context.Context, userID string) ([]model.Plan, error) {
	return s.userRepo.ListPlans(ctx, userID)
}

func (s *enrollmentService) ListEnrolledClasses(ctx context.Context, userID string) ([]model.Class, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.KindNotFound, "usuario no encontrado")
	}
	classes := make([]model.Class, 0, len(user.ClasesInscritas))
	for _, classID := range user.ClasesInscritas {
		c, err := s.classRepo.GetByID(ctx, classID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		classes = append(classes, *c)
	}
	return classes, nil
}
