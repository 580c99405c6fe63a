package service

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"sync"
	"time"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/repository"
)

// In-memory repository fakes mirroring the SQL implementations' contracts,
// including the typed errors the services branch on.

type fakeClassRepo struct {
	mu      sync.Mutex
	seq     int
	classes map[string]*model.Class
	rows    map[string][]repository.EnrollmentRow
	wait    map[string][]string
}

func newFakeClassRepo() *fakeClassRepo {
	return &fakeClassRepo{
		classes: map[string]*model.Class{},
		rows:    map[string][]repository.EnrollmentRow{},
		wait:    map[string][]string{},
	}
}

func (r *fakeClassRepo) nextID() string {
	r.seq++
	return "class-" + strconv.Itoa(r.seq)
}

func (r *fakeClassRepo) snapshot(c *model.Class) *model.Class {
	out := *c
	out.Enrolled = nil
	out.Detalles = nil
	out.Waitlist = nil
	for _, e := range r.rows[c.ID] {
		out.Enrolled = append(out.Enrolled, e.UserID)
		if e.CreditTypeID != nil {
			typeID := *e.CreditTypeID
			out.Detalles = append(out.Detalles, model.EnrollmentDetail{UserID: e.UserID, TipoCreditoUsed: &typeID})
		}
	}
	out.Waitlist = append(out.Waitlist, r.wait[c.ID]...)
	return &out
}

func (r *fakeClassRepo) Create(_ context.Context, c *model.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = r.nextID()
	}
	stored := *c
	r.classes[c.ID] = &stored
	return nil
}

func (r *fakeClassRepo) CreateBatch(ctx context.Context, cs []*model.Class) error {
	for _, c := range cs {
		if err := r.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeClassRepo) GetByID(_ context.Context, id string) (*model.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok {
		return nil, nil
	}
	return r.snapshot(c), nil
}

func (r *fakeClassRepo) List(_ context.Context, f repository.ClassFilter) ([]model.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := map[string]bool{}
	for _, s := range f.States {
		states[s] = true
	}
	var out []model.Class
	for _, c := range r.classes {
		if f.From != nil && c.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && c.Date.After(*f.To) {
			continue
		}
		if f.ClassTypeID != "" && c.ClassTypeID != f.ClassTypeID {
			continue
		}
		if f.Kind != "" && c.EnrollmentKind != f.Kind {
			continue
		}
		if len(states) > 0 && !states[c.State] {
			continue
		}
		out = append(out, *r.snapshot(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *fakeClassRepo) Update(_ context.Context, c *model.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.classes[c.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Name = c.Name
	stored.Teacher = c.Teacher
	stored.StartTime = c.StartTime
	stored.EndTime = c.EndTime
	stored.Capacity = c.Capacity
	stored.Date = c.Date
	stored.Weekday = c.Weekday
	stored.State = c.State
	return nil
}

func (r *fakeClassRepo) SetState(_ context.Context, id, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.State = state
	return nil
}

func (r *fakeClassRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.classes, id)
	delete(r.rows, id)
	delete(r.wait, id)
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func (r *fakeClassRepo) ListByDate(_ context.Context, day time.Time, state string) ([]model.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Class
	for _, c := range r.classes {
		if sameDay(c.Date, day) && c.State == state {
			out = append(out, *r.snapshot(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func matchesFamily(c *model.Class, key repository.FamilyKey) bool {
	return c.Name == key.Name && c.ClassTypeID == key.ClassTypeID && c.StartTime == key.StartTime
}

func (r *fakeClassRepo) ListFamily(_ context.Context, key repository.FamilyKey, from time.Time) ([]model.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Class
	for _, c := range r.classes {
		if matchesFamily(c, key) && !c.Date.Before(from) {
			out = append(out, *r.snapshot(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeClassRepo) LastOfFamily(_ context.Context, key repository.FamilyKey) (*model.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *model.Class
	for _, c := range r.classes {
		if !matchesFamily(c, key) {
			continue
		}
		if last == nil || c.Date.After(last.Date) {
			last = c
		}
	}
	if last == nil {
		return nil, nil
	}
	return r.snapshot(last), nil
}

func (r *fakeClassRepo) ListByRule(_ context.Context, rule string) ([]model.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Class
	for _, c := range r.classes {
		if c.RecurrenceRule == rule {
			out = append(out, *r.snapshot(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeClassRepo) ListRecurrenceRules(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var rules []string
	for _, c := range r.classes {
		if c.RecurrenceRule != "" && !seen[c.RecurrenceRule] {
			seen[c.RecurrenceRule] = true
			rules = append(rules, c.RecurrenceRule)
		}
	}
	sort.Strings(rules)
	return rules, nil
}

func (r *fakeClassRepo) UpdateFamily(_ context.Context, key repository.FamilyKey, from time.Time, u repository.ClassUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.classes {
		if !matchesFamily(c, key) || c.Date.Before(from) {
			continue
		}
		if u.Name != nil {
			c.Name = *u.Name
		}
		if u.Teacher != nil {
			c.Teacher = *u.Teacher
		}
		if u.Capacity != nil {
			c.Capacity = *u.Capacity
		}
		if u.StartTime != nil {
			c.StartTime = *u.StartTime
		}
		if u.EndTime != nil {
			c.EndTime = *u.EndTime
		}
		n++
	}
	return n, nil
}

func (r *fakeClassRepo) DeleteFamily(_ context.Context, key repository.FamilyKey, from time.Time) (int64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	capacitySum := 0
	for id, c := range r.classes {
		if !matchesFamily(c, key) || c.Date.Before(from) {
			continue
		}
		capacitySum += c.Capacity
		delete(r.classes, id)
		delete(r.rows, id)
		delete(r.wait, id)
		n++
	}
	return n, capacitySum, nil
}

func (r *fakeClassRepo) AddEnrollment(_ context.Context, classID, userID string, creditTypeID *string, freePass bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[classID]
	if !ok {
		return false, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	switch c.State {
	case model.ClassStateCancelled:
		return false, apperr.New(apperr.KindStateConflict, "la clase está cancelada")
	case model.ClassStateFull:
		return false, apperr.New(apperr.KindStateConflict, "el turno ya está lleno")
	}
	rows := r.rows[classID]
	if len(rows) >= c.Capacity {
		return false, apperr.New(apperr.KindStateConflict, "el turno ya está lleno")
	}
	for _, e := range rows {
		if e.UserID == userID {
			return false, apperr.New(apperr.KindStateConflict, "el usuario ya está inscrito en esta clase")
		}
	}
	r.rows[classID] = append(rows, repository.EnrollmentRow{UserID: userID, CreditTypeID: creditTypeID, FreePass: freePass})
	nowFull := len(rows)+1 >= c.Capacity
	if nowFull {
		c.State = model.ClassStateFull
	}
	return nowFull, nil
}

func (r *fakeClassRepo) RemoveEnrollment(_ context.Context, classID, userID string) (*repository.EnrollmentRow, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[classID]
	if !ok {
		return nil, false, apperr.New(apperr.KindNotFound, "clase no encontrada")
	}
	rows := r.rows[classID]
	for i, e := range rows {
		if e.UserID != userID {
			continue
		}
		r.rows[classID] = append(rows[:i:i], rows[i+1:]...)
		wasFull := c.State == model.ClassStateFull
		if wasFull {
			c.State = model.ClassStateActive
		}
		row := e
		return &row, wasFull, nil
	}
	return nil, false, apperr.New(apperr.KindStateConflict, "el usuario no está inscrito en esta clase")
}

func (r *fakeClassRepo) ClearEnrollments(_ context.Context, classID string) ([]repository.EnrollmentRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.rows[classID]
	delete(r.rows, classID)
	return rows, nil
}

func (r *fakeClassRepo) AddToWaitlist(_ context.Context, classID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.wait[classID] {
		if id == userID {
			return nil
		}
	}
	r.wait[classID] = append(r.wait[classID], userID)
	return nil
}

func (r *fakeClassRepo) RemoveFromWaitlist(_ context.Context, classID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.wait[classID]
	for i, id := range list {
		if id == userID {
			r.wait[classID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeUserRepo struct {
	mu          sync.Mutex
	seq         int
	users       map[string]*model.User
	credits     map[string]map[string]int
	userClasses map[string][]string
	plans       map[string]*model.Plan
	subs        map[string]*model.MonthlySubscription
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:       map[string]*model.User{},
		credits:     map[string]map[string]int{},
		userClasses: map[string][]string{},
		plans:       map[string]*model.Plan{},
		subs:        map[string]*model.MonthlySubscription{},
	}
}

func (r *fakeUserRepo) addUser(u model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := u
	r.users[u.ID] = &stored
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	out.CreditosPorTipo = map[string]int{}
	for k, v := range r.credits[id] {
		out.CreditosPorTipo[k] = v
	}
	out.ClasesInscritas = append([]string(nil), r.userClasses[id]...)
	return &out, nil
}

func (r *fakeUserRepo) CreditBalances(_ context.Context, userID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for k, v := range r.credits[userID] {
		out[k] = v
	}
	return out, nil
}

func (r *fakeUserRepo) AdjustCredit(_ context.Context, userID, classTypeID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.credits[userID] == nil {
		r.credits[userID] = map[string]int{}
	}
	r.credits[userID][classTypeID] += delta
	return nil
}

func (r *fakeUserRepo) DebitCredit(_ context.Context, userID, classTypeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.credits[userID][classTypeID] <= 0 {
		return false, nil
	}
	r.credits[userID][classTypeID]--
	return true, nil
}

func (r *fakeUserRepo) AddEnrolledClass(_ context.Context, userID, classID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.userClasses[userID] {
		if id == classID {
			return nil
		}
	}
	r.userClasses[userID] = append(r.userClasses[userID], classID)
	return nil
}

func (r *fakeUserRepo) RemoveEnrolledClass(_ context.Context, userID, classID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.userClasses[userID]
	for i, id := range list {
		if id == classID {
			r.userClasses[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeUserRepo) SetFreePass(_ context.Context, userID string, desde, hasta *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PaseLibreDesde = desde
	u.PaseLibreHasta = hasta
	return nil
}

func (r *fakeUserRepo) CreatePlan(_ context.Context, p *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		r.seq++
		p.ID = "plan-" + strconv.Itoa(r.seq)
	}
	stored := *p
	r.plans[p.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetPlan(_ context.Context, planID string) (*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (r *fakeUserRepo) DeletePlan(_ context.Context, planID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[planID]; !ok {
		return sql.ErrNoRows
	}
	delete(r.plans, planID)
	return nil
}

func (r *fakeUserRepo) ListPlans(_ context.Context, userID string) ([]model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Plan
	for _, p := range r.plans {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) CreateSubscription(_ context.Context, s *model.MonthlySubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.seq++
		s.ID = "sub-" + strconv.Itoa(r.seq)
	}
	stored := *s
	r.subs[s.ID] = &stored
	return nil
}

func (r *fakeUserRepo) DeleteSubscription(_ context.Context, subID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[subID]; !ok {
		return sql.ErrNoRows
	}
	delete(r.subs, subID)
	return nil
}

func (r *fakeUserRepo) ListSubscriptions(_ context.Context, userID string) ([]model.MonthlySubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MonthlySubscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) ListAutomaticSubscriptions(_ context.Context) ([]model.MonthlySubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MonthlySubscription
	for _, s := range r.subs {
		if s.Status == model.SubscriptionAutomatica {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) StampRenewal(_ context.Context, subID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[subID]
	if !ok {
		return sql.ErrNoRows
	}
	stamped := at
	s.LastRenewalDate = &stamped
	return nil
}

func (r *fakeUserRepo) ResetCreditsForType(_ context.Context, classTypeID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, balances := range r.credits {
		if balances[classTypeID] != 0 {
			balances[classTypeID] = 0
			n++
		}
	}
	return n, nil
}

type fakeClassTypeRepo struct {
	mu        sync.Mutex
	seq       int
	types     map[string]*model.ClassType
	instances map[string]int
}

func newFakeClassTypeRepo() *fakeClassTypeRepo {
	return &fakeClassTypeRepo{
		types:     map[string]*model.ClassType{},
		instances: map[string]int{},
	}
}

func (r *fakeClassTypeRepo) addType(t model.ClassType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := t
	r.types[t.ID] = &stored
}

func (r *fakeClassTypeRepo) Create(_ context.Context, t *model.ClassType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		r.seq++
		t.ID = "type-" + strconv.Itoa(r.seq)
	}
	stored := *t
	r.types[t.ID] = &stored
	return nil
}

func (r *fakeClassTypeRepo) GetByID(_ context.Context, id string) (*model.ClassType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}

func (r *fakeClassTypeRepo) List(_ context.Context) ([]model.ClassType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ClassType
	for _, t := range r.types {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeClassTypeRepo) Update(_ context.Context, t *model.ClassType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.types[t.ID]
	if !ok || stored.EsUniversal {
		return sql.ErrNoRows
	}
	stored.Name = t.Name
	stored.Description = t.Description
	stored.Price = t.Price
	stored.ResetMensual = t.ResetMensual
	return nil
}

func (r *fakeClassTypeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	if !ok || t.EsUniversal {
		return sql.ErrNoRows
	}
	delete(r.types, id)
	return nil
}

func (r *fakeClassTypeRepo) GetUniversal(_ context.Context) (*model.ClassType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t.EsUniversal {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeClassTypeRepo) EnsureUniversal(ctx context.Context) error {
	if t, _ := r.GetUniversal(ctx); t != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := "type-" + strconv.Itoa(r.seq)
	r.types[id] = &model.ClassType{ID: id, Name: model.UniversalTypeName, EsUniversal: true}
	return nil
}

func (r *fakeClassTypeRepo) AdjustTotals(_ context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.CreditosTotales += delta
	t.CreditosDisponibles += delta
	return nil
}

func (r *fakeClassTypeRepo) CountInstances(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id], nil
}

type fakeJobRunRepo struct {
	mu   sync.Mutex
	runs map[string]bool
}

func newFakeJobRunRepo() *fakeJobRunRepo {
	return &fakeJobRunRepo{runs: map[string]bool{}}
}

func (r *fakeJobRunRepo) HasRun(_ context.Context, job, period string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[job+"|"+period], nil
}

func (r *fakeJobRunRepo) MarkRun(_ context.Context, job, period string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[job+"|"+period] = true
	return nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (d *fakeDispatcher) SendSingleNotification(_ context.Context, n model.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *fakeDispatcher) ofType(t string) []model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Notification
	for _, n := range d.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
