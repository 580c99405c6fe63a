package service

import (
	"context"
	"sort"
	"time"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/recurrence"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// BulkUpdateInput describes a group edit. When Weekdays is non-empty the
// whole future family is regenerated under the new pattern; otherwise the
// non-nil fields are applied in place to every future instance.
type BulkUpdateInput struct {
	Key      repository.FamilyKey
	From     time.Time
	Weekdays []string
	Changes  repository.ClassUpdate
}

// GroupedClass is one summary row of the administrative grouped listing:
// all future instances sharing a recurrence-rule token collapsed together.
type GroupedClass struct {
	RecurrenceRule string    `json:"reglaRecurrencia"`
	Name           string    `json:"nombre"`
	ClassTypeID    string    `json:"tipoClase"`
	Teachers       []string  `json:"profesores"`
	StartTime      string    `json:"horaInicio"`
	EndTime        string    `json:"horaFin"`
	Weekdays       []string  `json:"dias"`
	Capacity       int       `json:"capacidad"`
	InstanceCount  int       `json:"cantidadClases"`
	FirstDate      time.Time `json:"primeraFecha"`
	LastDate       time.Time `json:"ultimaFecha"`
}

// ScheduleService implements the group-level operations over recurring
// class families: edit, delete, extend and the grouped listing.
type ScheduleService interface {
	BulkUpdate(ctx context.Context, in BulkUpdateInput) (int, error)
	// BulkDelete removes all future instances of the family. Administrative
	// cleanup: enrollments are dropped without per-user refunds.
	BulkDelete(ctx context.Context, key repository.FamilyKey, from time.Time) (int, error)
	// BulkExtend continues the family past its last instance through newEnd,
	// carrying over the template fields and reusing the rule token.
	BulkExtend(ctx context.Context, key repository.FamilyKey, newEnd time.Time) ([]model.Class, error)
	GroupedList(ctx context.Context, from time.Time) ([]GroupedClass, error)
	// AutoExtend keeps every recurring family populated through the given
	// horizon. Run by the weekly generation job.
	AutoExtend(ctx context.Context, horizon time.Time) (int, error)
}

type scheduleService struct {
	classRepo repository.ClassRepository
	typeRepo  repository.ClassTypeRepository
	logger    zerolog.Logger
}

func NewScheduleService(classRepo repository.ClassRepository, typeRepo repository.ClassTypeRepository,
	logger zerolog.Logger) ScheduleService {
	return &scheduleService{
		classRepo: classRepo,
		typeRepo:  typeRepo,
		logger:    logger.With().Str("service", "ScheduleService").Logger(),
	}
}

func (s *scheduleService) BulkUpdate(ctx context.Context, in BulkUpdateInput) (int, error) {
	family, err := s.classRepo.ListFamily(ctx, in.Key, in.From)
	if err != nil {
		return 0, err
	}
	if len(family) == 0 {
		return 0, apperr.New(apperr.KindNotFound, "no se encontraron clases del grupo")
	}

	if len(in.Weekdays) > 0 {
		return s.regenerateFamily(ctx, in, family)
	}

	n, err := s.classRepo.UpdateFamily(ctx, in.Key, in.From, in.Changes)
	if err != nil {
		return 0, err
	}
	if in.Changes.Capacity != nil {
		// Every touched instance moved to the new capacity; totals shift by
		// the summed per-instance delta.
		delta := 0
		for i := range family {
			delta += *in.Changes.Capacity - family[i].Capacity
		}
		if delta != 0 {
			if err := s.typeRepo.AdjustTotals(ctx, in.Key.ClassTypeID, delta); err != nil {
				s.logger.Error().Err(err).Str("class_type", in.Key.ClassTypeID).
					Msg("Failed to adjust credit totals after bulk update")
			}
		}
	}
	return int(n), nil
}

// regenerateFamily handles a weekday-pattern change: the future family is
// deleted and recreated under the new pattern, preserving the template
// fields (with in.Changes applied on top).
func (s *scheduleService) regenerateFamily(ctx context.Context, in BulkUpdateInput, family []model.Class) (int, error) {
	template := family[0]
	lastDate := family[len(family)-1].Date

	if in.Changes.Name != nil {
		template.Name = *in.Changes.Name
	}
	if in.Changes.Teacher != nil {
		template.Teacher = *in.Changes.Teacher
	}
	if in.Changes.Capacity != nil {
		template.Capacity = *in.Changes.Capacity
	}
	if in.Changes.StartTime != nil {
		template.StartTime = *in.Changes.StartTime
	}
	if in.Changes.EndTime != nil {
		template.EndTime = *in.Changes.EndTime
	}

	dates := recurrence.Expand(in.Weekdays, in.From, lastDate)
	if len(dates) == 0 {
		return 0, apperr.New(apperr.KindValidation,
			"no se generaría ninguna clase válida con el nuevo patrón de días")
	}

	deleted, capacitySum, err := s.classRepo.DeleteFamily(ctx, in.Key, in.From)
	if err != nil {
		return 0, err
	}
	if err := s.typeRepo.AdjustTotals(ctx, in.Key.ClassTypeID, -capacitySum); err != nil {
		s.logger.Error().Err(err).Msg("Failed to adjust credit totals after family delete")
	}
	s.logger.Info().Int64("deleted", deleted).Str("name", in.Key.Name).Msg("Regenerating class family under new weekday pattern")

	rule := recurrence.NewRuleToken()
	batch := make([]*model.Class, 0, len(dates))
	for _, d := range dates {
		batch = append(batch, &model.Class{
			Name:           template.Name,
			ClassTypeID:    template.ClassTypeID,
			Teacher:        template.Teacher,
			StartTime:      template.StartTime,
			EndTime:        template.EndTime,
			Capacity:       template.Capacity,
			Date:           d,
			Weekday:        recurrence.WeekdayName(d),
			EnrollmentKind: model.EnrollmentKindFijo,
			RecurrenceRule: rule,
			State:          model.ClassStateActive,
		})
	}
	if err := s.classRepo.CreateBatch(ctx, batch); err != nil {
		return 0, err
	}
	if err := s.typeRepo.AdjustTotals(ctx, template.ClassTypeID, template.Capacity*len(batch)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to adjust credit totals after family regeneration")
	}
	return len(batch), nil
}

func (s *scheduleService) BulkDelete(ctx context.Context, key repository.FamilyKey, from time.Time) (int, error) {
	deleted, capacitySum, err := s.classRepo.DeleteFamily(ctx, key, from)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, apperr.New(apperr.KindNotFound, "no se encontraron clases del grupo")
	}
	if err := s.typeRepo.AdjustTotals(ctx, key.ClassTypeID, -capacitySum); err != nil {
		s.logger.Error().Err(err).Str("class_type", key.ClassTypeID).
			Msg("Failed to adjust credit totals after bulk delete")
	}
	return int(deleted), nil
}

func (s *scheduleService) BulkExtend(ctx context.Context, key repository.FamilyKey, newEnd time.Time) ([]model.Class, error) {
	template, err := s.classRepo.LastOfFamily(ctx, key)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, apperr.New(apperr.KindNotFound, "no se encontraron clases del grupo")
	}
	if !newEnd.After(template.Date) {
		return nil, apperr.Newf(apperr.KindValidation,
			"la nueva fecha de fin debe ser posterior a la última clase (%s)",
			template.Date.Format("02/01/2006"))
	}

	weekdays, err := s.familyWeekdays(ctx, template)
	if err != nil {
		return nil, err
	}
	return s.extend(ctx, template, weekdays, newEnd)
}

// familyWeekdays collects the distinct weekday labels observed across the
// template's family, so an extension reproduces the actual pattern.
func (s *scheduleService) familyWeekdays(ctx context.Context, template *model.Class) ([]string, error) {
	var family []model.Class
	var err error
	if template.RecurrenceRule != "" {
		family, err = s.classRepo.ListByRule(ctx, template.RecurrenceRule)
	} else {
		family, err = s.classRepo.ListFamily(ctx, repository.FamilyKey{
			Name:        template.Name,
			ClassTypeID: template.ClassTypeID,
			StartTime:   template.StartTime,
		}, time.Time{})
	}
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var weekdays []string
	for i := range family {
		if !seen[family[i].Weekday] {
			seen[family[i].Weekday] = true
			weekdays = append(weekdays, family[i].Weekday)
		}
	}
	return weekdays, nil
}

func (s *scheduleService) extend(ctx context.Context, template *model.Class, weekdays []string, until time.Time) ([]model.Class, error) {
	dates := recurrence.Expand(weekdays, template.Date.AddDate(0, 0, 1), until)
	if len(dates) == 0 {
		return nil, apperr.New(apperr.KindValidation,
			"no se generaría ninguna clase nueva hasta la fecha indicada")
	}

	rule := template.RecurrenceRule
	if rule == "" {
		rule = recurrence.NewRuleToken()
	}
	batch := make([]*model.Class, 0, len(dates))
	for _, d := range dates {
		batch = append(batch, &model.Class{
			Name:           template.Name,
			ClassTypeID:    template.ClassTypeID,
			Teacher:        template.Teacher,
			StartTime:      template.StartTime,
			EndTime:        template.EndTime,
			Capacity:       template.Capacity,
			Date:           d,
			Weekday:        recurrence.WeekdayName(d),
			EnrollmentKind: model.EnrollmentKindFijo,
			RecurrenceRule: rule,
			State:          model.ClassStateActive,
		})
	}
	if err := s.classRepo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	if err := s.typeRepo.AdjustTotals(ctx, template.ClassTypeID, template.Capacity*len(batch)); err != nil {
		s.logger.Error().Err(err).Str("class_type", template.ClassTypeID).
			Msg("Failed to adjust credit totals after extension")
	}

	out := make([]model.Class, len(batch))
	for i, c := range batch {
		out[i] = *c
	}
	return out, nil
}

func (s *scheduleService) GroupedList(ctx context.Context, from time.Time) ([]GroupedClass, error) {
	classes, err := s.classRepo.List(ctx, repository.ClassFilter{
		From: &from,
		Kind: model.EnrollmentKindFijo,
	})
	if err != nil {
		return nil, err
	}

	groups := map[string]*GroupedClass{}
	for i := range classes {
		c := &classes[i]
		if c.RecurrenceRule == "" {
			continue
		}
		g, ok := groups[c.RecurrenceRule]
		if !ok {
			g = &GroupedClass{
				RecurrenceRule: c.RecurrenceRule,
				Name:           c.Name,
				ClassTypeID:    c.ClassTypeID,
				StartTime:      c.StartTime,
				EndTime:        c.EndTime,
				Capacity:       c.Capacity,
				FirstDate:      c.Date,
				LastDate:       c.Date,
			}
			groups[c.RecurrenceRule] = g
		}
		g.InstanceCount++
		if c.Date.Before(g.FirstDate) {
			g.FirstDate = c.Date
		}
		if c.Date.After(g.LastDate) {
			g.LastDate = c.Date
		}
		if !contains(g.Teachers, c.Teacher) && c.Teacher != "" {
			g.Teachers = append(g.Teachers, c.Teacher)
		}
		if !contains(g.Weekdays, c.Weekday) {
			g.Weekdays = append(g.Weekdays, c.Weekday)
		}
	}

	out := make([]GroupedClass, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstDate.Equal(out[j].FirstDate) {
			return out[i].FirstDate.Before(out[j].FirstDate)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (s *scheduleService) AutoExtend(ctx context.Context, horizon time.Time) (int, error) {
	rules, err := s.classRepo.ListRecurrenceRules(ctx)
	if err != nil {
		return 0, err
	}
	extended := 0
	for _, rule := range rules {
		family, err := s.classRepo.ListByRule(ctx, rule)
		if err != nil {
			s.logger.Error().Err(err).Str("rule", rule).Msg("Failed to load family for auto-extension")
			continue
		}
		if len(family) == 0 {
			continue
		}
		template := family[len(family)-1]
		if !template.Date.Before(horizon) {
			continue
		}
		weekdays, err := s.familyWeekdays(ctx, &template)
		if err != nil {
			s.logger.Error().Err(err).Str("rule", rule).Msg("Failed to collect weekdays for auto-extension")
			continue
		}
		created, err := s.extend(ctx, &template, weekdays, horizon)
		if err != nil {
			s.logger.Error().Err(err).Str("rule", rule).Msg("Failed to auto-extend family")
			continue
		}
		extended += len(created)
	}
	return extended, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
