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

// ClassInput carries the template fields for creating class instances.
type ClassInput struct {
	Name        string
	ClassTypeID string
	Teacher     string
	StartTime   string
	EndTime     string
	Capacity    int
	Date        time.Time // single-instance creation only
	Weekdays    []string  // recurring creation only
	RangeStart  time.Time // recurring creation only
	RangeEnd    time.Time // recurring creation only
}

// ClassPatch is a partial update of one instance. Nil fields are untouched.
type ClassPatch struct {
	Name      *string
	Teacher   *string
	StartTime *string
	EndTime   *string
	Capacity  *int
	Date      *time.Time
}

// ClassService owns the class-instance lifecycle: creation (single and
// recurring), updates, cancellation/reactivation, deletion and the
// class-type credit-total bookkeeping that goes with capacity changes.
type ClassService interface {
	CreateSingle(ctx context.Context, in ClassInput) (*model.Class, error)
	CreateRecurring(ctx context.Context, in ClassInput) ([]model.Class, error)
	Get(ctx context.Context, id string) (*model.Class, error)
	List(ctx context.Context, f repository.ClassFilter) ([]model.Class, error)
	Update(ctx context.Context, id string, patch ClassPatch) (*model.Class, error)
	// Cancel marks the instance cancelada, refunding each enrolled user the
	// credit type actually debited (unless refundCredits is false or a free
	// pass covered the enrollment) and clearing the enrollment lists.
	Cancel(ctx context.Context, id string, refundCredits bool) (*model.Class, error)
	// Reactivate returns a cancelada instance to activa. Previously cleared
	// enrollments are not restored, only the slot becomes bookable again.
	Reactivate(ctx context.Context, id string) (*model.Class, error)
	// Delete removes the instance entirely, refunding enrolled users and
	// rolling the capacity out of the class type's credit totals.
	Delete(ctx context.Context, id string) error
	// CancelByDate cancels every activa instance on the given calendar day,
	// aggregating one notification per affected user.
	CancelByDate(ctx context.Context, day time.Time, refundCredits bool) (int, error)
	ReactivateByDate(ctx context.Context, day time.Time) (int, error)
}

type classService struct {
	classRepo  repository.ClassRepository
	typeRepo   repository.ClassTypeRepository
	userRepo   repository.UserRepository
	dispatcher notify.Dispatcher
	logger     zerolog.Logger
}

func NewClassService(classRepo repository.ClassRepository, typeRepo repository.ClassTypeRepository,
	userRepo repository.UserRepository, dispatcher notify.Dispatcher, logger zerolog.Logger) ClassService {
	return &classService{
		classRepo:  classRepo,
		typeRepo:   typeRepo,
		userRepo:   userRepo,
		dispatcher: dispatcher,
		logger:     logger.With().Str("service", "ClassService").Logger(),
	}
}

func (s *classService) requireType(ctx context.Context, classTypeID string) (*model.ClassType, error) {
	ct, err := s.typeRepo.GetByID(ctx, classTypeID)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, apperr.New(apperr.KindNotFound, "tipo de clase no encontrado")
	}
	if ct.EsUniversal {
		return nil, apperr.New(apperr.KindValidation, "el tipo universal no admite clases propias")
	}
	return ct, nil
}

func (s *classService) CreateSingle(ctx context.Context, in ClassInput) (*model.Class, error) {
	if _, err := s.requireType(ctx, in.ClassTypeID); err != nil {
		return nil, err
	}
	if in.Capacity < 0 {
		return nil, apperr.New(apperr.KindValidation, "la capacidad no puede ser negativa")
	}

	date := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 12, 0, 0, 0, time.UTC)
	c := &model.Class{
		Name:           in.Name,
		ClassTypeID:    in.ClassTypeID,
		Teacher:        in.Teacher,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		Capacity:       in.Capacity,
		Date:           date,
		Weekday:        recurrence.WeekdayName(date),
		EnrollmentKind: model.EnrollmentKindLibre,
		State:          model.ClassStateActive,
	}
	if err := s.classRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	if err := s.typeRepo.AdjustTotals(ctx, in.ClassTypeID, in.Capacity); err != nil {
		s.logger.Error().Err(err).Str("class_type", in.ClassTypeID).Msg("Failed to adjust credit totals after create")
	}
	return c, nil
}

func (s *classService) CreateRecurring(ctx context.Context, in ClassInput) ([]model.Class, error) {
	if _, err := s.requireType(ctx, in.ClassTypeID); err != nil {
		return nil, err
	}
	if in.Capacity < 0 {
		return nil, apperr.New(apperr.KindValidation, "la capacidad no puede ser negativa")
	}

	dates := recurrence.Expand(in.Weekdays, in.RangeStart, in.RangeEnd)
	if len(dates) == 0 {
		return nil, apperr.New(apperr.KindValidation,
			"no se generaría ninguna clase válida con los días y fechas indicados")
	}

	rule := recurrence.NewRuleToken()
	classes := make([]*model.Class, 0, len(dates))
	for _, d := range dates {
		classes = append(classes, &model.Class{
			Name:           in.Name,
			ClassTypeID:    in.ClassTypeID,
			Teacher:        in.Teacher,
			StartTime:      in.StartTime,
			EndTime:        in.EndTime,
			Capacity:       in.Capacity,
			Date:           d,
			Weekday:        recurrence.WeekdayName(d),
			EnrollmentKind: model.EnrollmentKindFijo,
			RecurrenceRule: rule,
			State:          model.ClassStateActive,
		})
	}
	if err := s.classRepo.CreateBatch(ctx, classes); err != nil {
		return nil, err
	}
	if err := s.typeRepo.AdjustTotals(ctx, in.ClassTypeID, in.Capacity*len(classes)); err != nil {
		s.logger.Error().Err(err).Str("class_type", in.ClassTypeID).Msg("Failed to adjust credit totals after batch create")
	}

	out := make([]model.Class, len(classes))
	for i, c := range classes {
		out[i] = *c
	}
	return out, nil
}

func (s *classService) Get(ctx context.Context, id string) (*model.Class, error) {
	c, err := s.classRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	return c, nil
}

func (s *classService) List(ctx context.Context, f repository.ClassFilter) ([]model.Class, error) {
	return s.classRepo.List(ctx, f)
}

func (s *classService) Update(ctx context.Context, id string, patch ClassPatch) (*model.Class, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	capacityDelta := 0
	scheduleChanged := false
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Teacher != nil {
		c.Teacher = *patch.Teacher
	}
	if patch.StartTime != nil && *patch.StartTime != c.StartTime {
		c.StartTime = *patch.StartTime
		scheduleChanged = true
	}
	if patch.EndTime != nil {
		c.EndTime = *patch.EndTime
	}
	if patch.Capacity != nil {
		if *patch.Capacity < len(c.Enrolled) {
			return nil, apperr.Newf(apperr.KindValidation,
				"la clase tiene %d inscriptos, la capacidad no puede ser menor", len(c.Enrolled))
		}
		capacityDelta = *patch.Capacity - c.Capacity
		c.Capacity = *patch.Capacity
	}
	if patch.Date != nil {
		newDate := time.Date(patch.Date.Year(), patch.Date.Month(), patch.Date.Day(), 12, 0, 0, 0, time.UTC)
		if !newDate.Equal(c.Date) {
			c.Date = newDate
			c.Weekday = recurrence.WeekdayName(newDate)
			scheduleChanged = true
		}
	}
	// A capacity raise can reopen a full class.
	if c.State == model.ClassStateFull && len(c.Enrolled) < c.Capacity {
		c.State = model.ClassStateActive
	}

	if err := s.classRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	if capacityDelta != 0 {
		if err := s.typeRepo.AdjustTotals(ctx, c.ClassTypeID, capacityDelta); err != nil {
			s.logger.Error().Err(err).Str("class", c.ID).Msg("Failed to adjust credit totals after capacity change")
		}
	}
	if scheduleChanged && len(c.Enrolled) > 0 {
		for _, userID := range c.Enrolled {
			s.dispatcher.SendSingleNotification(ctx, model.Notification{
				UserID:         userID,
				Title:          "Cambio de horario",
				Message:        "La clase " + c.Name + " cambió de horario: " + c.Date.Format("02/01/2006") + " " + c.StartTime,
				Type:           model.NotificationClassChanged,
				IsImportant:    true,
				RelatedClassID: c.ID,
			})
		}
	}
	return c, nil
}

// refundCleared compensates cleared enrollments: each non-free-pass user
// gets back the credit type recorded at enrollment, falling back to the
// instance's nominal type for legacy rows without a detail record.
func (s *classService) refundCleared(ctx context.Context, c *model.Class, rows []repository.EnrollmentRow) {
	for _, row := range rows {
		if row.FreePass {
			continue
		}
		typeID := c.ClassTypeID
		if row.CreditTypeID != nil {
			typeID = *row.CreditTypeID
		}
		if err := s.userRepo.AdjustCredit(ctx, row.UserID, typeID, 1); err != nil {
			s.logger.Error().Err(err).Str("user", row.UserID).Str("class", c.ID).Msg("Failed to refund credit")
		}
	}
}

func (s *classService) Cancel(ctx context.Context, id string, refundCredits bool) (*model.Class, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.State == model.ClassStateCancelled {
		return nil, apperr.New(apperr.KindStateConflict, "la clase ya está cancelada")
	}

	rows, err := s.classRepo.ClearEnrollments(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.classRepo.SetState(ctx, id, model.ClassStateCancelled); err != nil {
		return nil, err
	}
	if refundCredits {
		s.refundCleared(ctx, c, rows)
	}
	for _, row := range rows {
		if err := s.userRepo.RemoveEnrolledClass(ctx, row.UserID, id); err != nil {
			s.logger.Error().Err(err).Str("user", row.UserID).Msg("Failed to remove class from user profile")
		}
		msg := "La clase " + c.Name + " del " + c.Date.Format("02/01/2006") + " fue cancelada."
		if refundCredits && !row.FreePass {
			msg += " Se te devolvió el crédito utilizado."
		}
		s.dispatcher.SendSingleNotification(ctx, model.Notification{
			UserID:         row.UserID,
			Title:          "Clase cancelada",
			Message:        msg,
			Type:           model.NotificationClassCancelled,
			IsImportant:    true,
			RelatedClassID: c.ID,
		})
	}

	return s.Get(ctx, id)
}

func (s *classService) Reactivate(ctx context.Context, id string) (*model.Class, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.State != model.ClassStateCancelled {
		return nil, apperr.New(apperr.KindStateConflict, "la clase no está cancelada")
	}
	if err := s.classRepo.SetState(ctx, id, model.ClassStateActive); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *classService) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	rows, err := s.classRepo.ClearEnrollments(ctx, id)
	if err != nil {
		return err
	}
	s.refundCleared(ctx, c, rows)
	for _, row := range rows {
		if err := s.userRepo.RemoveEnrolledClass(ctx, row.UserID, id); err != nil {
			s.logger.Error().Err(err).Str("user", row.UserID).Msg("Failed to remove class from user profile")
		}
	}
	if err := s.typeRepo.AdjustTotals(ctx, c.ClassTypeID, -c.Capacity); err != nil {
		s.logger.Error().Err(err).Str("class_type", c.ClassTypeID).Msg("Failed to adjust credit totals after delete")
	}
	if err := s.classRepo.Delete(ctx, id); err != nil {
		return err
	}
	for _, row := range rows {
		s.dispatcher.SendSingleNotification(ctx, model.Notification{
			UserID:         row.UserID,
			Title:          "Clase eliminada",
			Message:        "La clase " + c.Name + " del " + c.Date.Format("02/01/2006") + " fue eliminada y se te devolvió el crédito.",
			Type:           model.NotificationClassDeleted,
			IsImportant:    true,
			RelatedClassID: c.ID,
		})
	}
	return nil
}

func (s *classService) CancelByDate(ctx context.Context, day time.Time, refundCredits bool) (int, error) {
	classes, err := s.classRepo.ListByDate(ctx, day, model.ClassStateActive)
	if err != nil {
		return 0, err
	}

	// One notification per affected user, not per instance.
	affected := map[string]bool{}
	cancelled := 0
	for i := range classes {
		c := &classes[i]
		rows, err := s.classRepo.ClearEnrollments(ctx, c.ID)
		if err != nil {
			// Best-effort batch: earlier instances stay cancelled.
			s.logger.Error().Err(err).Str("class", c.ID).Msg("Failed to clear enrollments during cancel-by-date")
			continue
		}
		if err := s.classRepo.SetState(ctx, c.ID, model.ClassStateCancelled); err != nil {
			s.logger.Error().Err(err).Str("class", c.ID).Msg("Failed to cancel class during cancel-by-date")
			continue
		}
		if refundCredits {
			s.refundCleared(ctx, c, rows)
		}
		for _, row := range rows {
			if err := s.userRepo.RemoveEnrolledClass(ctx, row.UserID, c.ID); err != nil {
				s.logger.Error().Err(err).Str("user", row.UserID).Msg("Failed to remove class from user profile")
			}
			affected[row.UserID] = true
		}
		cancelled++
	}

	for userID := range affected {
		s.dispatcher.SendSingleNotification(ctx, model.Notification{
			UserID:      userID,
			Title:       "Clases canceladas",
			Message:     "Las clases del " + day.Format("02/01/2006") + " fueron canceladas.",
			Type:        model.NotificationClassCancelled,
			IsImportant: true,
		})
	}
	return cancelled, nil
}

func (s *classService) ReactivateByDate(ctx context.Context, day time.Time) (int, error) {
	classes, err := s.classRepo.ListByDate(ctx, day, model.ClassStateCancelled)
	if err != nil {
		return 0, err
	}
	reactivated := 0
	for i := range classes {
		if err := s.classRepo.SetState(ctx, classes[i].ID, model.ClassStateActive); err != nil {
			s.logger.Error().Err(err).Str("class", classes[i].ID).Msg("Failed to reactivate class during reactivate-by-date")
			continue
		}
		reactivated++
	}
	return reactivated, nil
}
