package service

import (
	"context"
	"testing"
	"time"

	"app/internal/apperr"
	"app/internal/model"

	"github.com/rs/zerolog"
)

// Tests run in the gym's civil timezone, UTC-3.
const testOffsetMin = -180

type enrollFixture struct {
	classes *fakeClassRepo
	types   *fakeClassTypeRepo
	users   *fakeUserRepo
	disp    *fakeDispatcher
	credits CreditService
	svc     *enrollmentService
}

func newEnrollFixture() *enrollFixture {
	f := &enrollFixture{
		classes: newFakeClassRepo(),
		types:   newFakeClassTypeRepo(),
		users:   newFakeUserRepo(),
		disp:    &fakeDispatcher{},
	}
	f.types.addType(model.ClassType{ID: "universal", Name: model.UniversalTypeName, EsUniversal: true})
	f.types.addType(model.ClassType{ID: "yoga", Name: "Yoga"})
	f.credits = NewCreditService(f.users, f.types, newFakeJobRunRepo(), zerolog.Nop())
	f.svc = NewEnrollmentService(f.classes, f.types, f.users, f.credits, f.disp,
		testOffsetMin, zerolog.Nop()).(*enrollmentService)
	return f
}

func (f *enrollFixture) seedClass(id string, capacity int, date time.Time, startTime string) *model.Class {
	c := &model.Class{
		ID: id, Name: "Yoga", ClassTypeID: "yoga", StartTime: startTime, EndTime: "11:00",
		Capacity: capacity, Date: date, Weekday: "lunes",
		EnrollmentKind: model.EnrollmentKindFijo, State: model.ClassStateActive,
	}
	f.classes.Create(context.Background(), c)
	return c
}

func (f *enrollFixture) seedUser(id string, credits map[string]int) {
	f.users.addUser(model.User{ID: id})
	for typeID, n := range credits {
		f.users.AdjustCredit(context.Background(), id, typeID, n)
	}
}

func TestEnrollmentCapacityScenario(t *testing.T) {
	f := newEnrollFixture()
	classDate := day(2026, 9, 14) // Monday
	c := f.seedClass("c1", 1, classDate, "10:00")
	f.seedUser("ana", map[string]int{"yoga": 3})
	f.seedUser("bruno", map[string]int{"yoga": 1})

	// 10:00 in UTC-3 is 13:00 UTC; stay well before the cutoff.
	start := c.StartInstant(testOffsetMin)
	f.svc.now = func() time.Time { return start.Add(-2 * time.Hour) }

	got, err := f.svc.Enroll(context.Background(), "c1", "ana", false)
	if err != nil {
		t.Fatalf("Enroll ana: %v", err)
	}
	if got.State != model.ClassStateFull {
		t.Fatalf("expected llena after last seat, got %s", got.State)
	}
	balances, _ := f.users.CreditBalances(context.Background(), "ana")
	if balances["yoga"] != 2 {
		t.Fatalf("expected debit to 2, got %d", balances["yoga"])
	}

	if _, err := f.svc.Enroll(context.Background(), "c1", "bruno", false); apperr.KindOf(err) != apperr.KindStateConflict {
		t.Fatalf("full class: expected state conflict, got %v", err)
	}
	if err := f.svc.SubscribeWaitlist(context.Background(), "c1", "bruno"); err != nil {
		t.Fatalf("SubscribeWaitlist: %v", err)
	}

	got, err = f.svc.Unenroll(context.Background(), "c1", "ana", false)
	if err != nil {
		t.Fatalf("Unenroll ana: %v", err)
	}
	if got.State != model.ClassStateActive {
		t.Errorf("expected activa after freed seat, got %s", got.State)
	}
	balances, _ = f.users.CreditBalances(context.Background(), "ana")
	if balances["yoga"] != 3 {
		t.Errorf("expected refund to 3, got %d", balances["yoga"])
	}
	if got := f.disp.ofType(model.NotificationSpotOpened); len(got) != 1 || got[0].UserID != "bruno" {
		t.Errorf("expected freed-seat notification for bruno, got %v", got)
	}

	if _, err := f.svc.Enroll(context.Background(), "c1", "bruno", false); err != nil {
		t.Fatalf("Enroll bruno after freed seat: %v", err)
	}
}

func TestUnenrollCutoff(t *testing.T) {
	f := newEnrollFixture()
	c := f.seedClass("c1", 5, day(2026, 9, 14), "10:00")
	f.seedUser("ana", map[string]int{"yoga": 1})

	start := c.StartInstant(testOffsetMin)
	f.svc.now = func() time.Time { return start.Add(-3 * time.Hour) }
	if _, err := f.svc.Enroll(context.Background(), "c1", "ana", false); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// 30 minutes before start: self-service window is closed.
	f.svc.now = func() time.Time { return start.Add(-30 * time.Minute) }
	if _, err := f.svc.Unenroll(context.Background(), "c1", "ana", false); apperr.KindOf(err) != apperr.KindStateConflict {
		t.Fatalf("expected cutoff rejection, got %v", err)
	}

	// Admin removal bypasses the cutoff and still refunds.
	if _, err := f.svc.Unenroll(context.Background(), "c1", "ana", true); err != nil {
		t.Fatalf("forced Unenroll: %v", err)
	}
	balances, _ := f.users.CreditBalances(context.Background(), "ana")
	if balances["yoga"] != 1 {
		t.Errorf("expected refund, got %d", balances["yoga"])
	}
}

func TestFreePassEnrollmentConsumesNothing(t *testing.T) {
	f := newEnrollFixture()
	c := f.seedClass("c1", 5, day(2026, 9, 14), "10:00")
	desde := day(2026, 9, 1)
	hasta := day(2026, 9, 30)
	f.users.addUser(model.User{ID: "ana", PaseLibreDesde: &desde, PaseLibreHasta: &hasta})

	f.svc.now = func() time.Time { return c.StartInstant(testOffsetMin).Add(-2 * time.Hour) }
	got, err := f.svc.Enroll(context.Background(), "c1", "ana", false)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	// No credit consumed, so no detail entry either.
	if len(got.Detalles) != 0 {
		t.Errorf("free-pass enrollment must not record a detail, got %v", got.Detalles)
	}

	if _, err := f.svc.Unenroll(context.Background(), "c1", "ana", false); err != nil {
		t.Fatalf("Unenroll: %v", err)
	}
	balances, _ := f.users.CreditBalances(context.Background(), "ana")
	for typeID, n := range balances {
		if n != 0 {
			t.Errorf("free-pass unenroll must not refund, got %s=%d", typeID, n)
		}
	}
}

func TestRefundFollowsRecordedType(t *testing.T) {
	f := newEnrollFixture()
	c := f.seedClass("c1", 5, day(2026, 9, 14), "10:00")
	f.seedUser("ana", map[string]int{"universal": 1})

	f.svc.now = func() time.Time { return c.StartInstant(testOffsetMin).Add(-2 * time.Hour) }
	got, err := f.svc.Enroll(context.Background(), "c1", "ana", false)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	d := got.DetailFor("ana")
	if d == nil || *d.TipoCreditoUsed != "universal" {
		t.Fatalf("expected recorded universal debit, got %v", d)
	}

	if _, err := f.svc.Unenroll(context.Background(), "c1", "ana", false); err != nil {
		t.Fatalf("Unenroll: %v", err)
	}
	balances, _ := f.users.CreditBalances(context.Background(), "ana")
	if balances["universal"] != 1 || balances["yoga"] != 0 {
		t.Errorf("refund must follow the debited type, got %v", balances)
	}
}

func TestEnrollRejectsUniversalClass(t *testing.T) {
	f := newEnrollFixture()
	c := &model.Class{
		ID: "c1", Name: "X", ClassTypeID: "universal", StartTime: "10:00", EndTime: "11:00",
		Capacity: 5, Date: day(2026, 9, 14), State: model.ClassStateActive,
	}
	f.classes.Create(context.Background(), c)
	f.seedUser("ana", map[string]int{"universal": 3})

	if _, err := f.svc.Enroll(context.Background(), "c1", "ana", false); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdminEnrollRemovesFromWaitlist(t *testing.T) {
	f := newEnrollFixture()
	f.seedClass("c1", 2, day(2026, 9, 14), "10:00")
	f.seedUser("ana", map[string]int{"yoga": 1})
	f.classes.AddToWaitlist(context.Background(), "c1", "ana")

	got, err := f.svc.Enroll(context.Background(), "c1", "ana", true)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if got.IsWaitlisted("ana") {
		t.Error("admin add must remove the user from the waitlist")
	}
}

func TestSubscribeWaitlistOnlyWhenFull(t *testing.T) {
	f := newEnrollFixture()
	f.seedClass("c1", 2, day(2026, 9, 14), "10:00")

	if err := f.svc.SubscribeWaitlist(context.Background(), "c1", "ana"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("open class: expected validation error, got %v", err)
	}
}

func TestEnrollPlanCommitsAllMatching(t *testing.T) {
	f := newEnrollFixture()
	f.seedClass("c1", 5, day(2026, 9, 14), "10:00")
	f.seedClass("c2", 5, day(2026, 9, 21), "10:00")
	f.seedClass("other", 5, day(2026, 9, 15), "10:00") // Tuesday, not in the plan
	f.seedUser("ana", map[string]int{"yoga": 2})

	plan, n, err := f.svc.EnrollPlan(context.Background(), PlanInput{
		UserID: "ana", ClassTypeID: "yoga", Weekdays: []string{"lunes"},
		StartTime: "10:00", EndTime: "11:00",
		Desde: day(2026, 9, 1), Hasta: day(2026, 9, 30),
	})
	if err != nil {
		t.Fatalf("EnrollPlan: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 enrollments, got %d", n)
	}
	if plan.ID == "" {
		t.Error("expected a persisted plan")
	}
	for _, id := range []string{"c1", "c2"} {
		c, _ := f.classes.GetByID(context.Background(), id)
		if !c.IsEnrolled("ana") {
			t.Errorf("expected ana enrolled in %s", id)
		}
	}
	c, _ := f.classes.GetByID(context.Background(), "other")
	if c.IsEnrolled("ana") {
		t.Error("non-matching weekday must not be enrolled")
	}
}

func TestEnrollPlanRollsBackOnMidBatchFailure(t *testing.T) {
	f := newEnrollFixture()
	f.seedClass("c1", 5, day(2026, 9, 14), "10:00")
	f.seedClass("c2", 5, day(2026, 9, 21), "10:00")
	// One credit for two instances: the second enrollment must fail and the
	// first must be rolled back.
	f.seedUser("ana", map[string]int{"yoga": 1})

	_, _, err := f.svc.EnrollPlan(context.Background(), PlanInput{
		UserID: "ana", ClassTypeID: "yoga", Weekdays: []string{"lunes"},
		StartTime: "10:00", EndTime: "11:00",
		Desde: day(2026, 9, 1), Hasta: day(2026, 9, 30),
	})
	if apperr.KindOf(err) != apperr.KindInsufficientCredit {
		t.Fatalf("expected insufficient-credit error, got %v", err)
	}

	for _, id := range []string{"c1", "c2"} {
		c, _ := f.classes.GetByID(context.Background(), id)
		if len(c.Enrolled) != 0 {
			t.Errorf("expected %s rolled back, got %v", id, c.Enrolled)
		}
	}
	balances, _ := f.users.CreditBalances(context.Background(), "ana")
	if balances["yoga"] != 1 {
		t.Errorf("expected credit restored, got %d", balances["yoga"])
	}
	plans, _ := f.users.ListPlans(context.Background(), "ana")
	if len(plans) != 0 {
		t.Errorf("expected no plan persisted, got %v", plans)
	}
}

func TestEnrollPlanRejectsFullInstanceUpfront(t *testing.T) {
	f := newEnrollFixture()
	f.seedClass("c1", 1, day(2026, 9, 14), "10:00")
	f.seedClass("c2", 5, day(2026, 9, 21), "10:00")
	f.classes.AddEnrollment(context.Background(), "c1", "otro", nil, false)
	f.seedUser("ana", map[string]int{"yoga": 5})

	_, _, err := f.svc.EnrollPlan(context.Background(), PlanInput{
		UserID: "ana", ClassTypeID: "yoga", Weekdays: []string{"lunes"},
		StartTime: "10:00", EndTime: "11:00",
		Desde: day(2026, 9, 1), Hasta: day(2026, 9, 30),
	})
	if apperr.KindOf(err) != apperr.KindStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	c, _ := f.classes.GetByID(context.Background(), "c2")
	if len(c.Enrolled) != 0 {
		t.Errorf("pre-check failure must not enroll anywhere, got %v", c.Enrolled)
	}
}

func TestRemovePlanUnenrollsFutureInstances(t *testing.T) {
	f := newEnrollFixture()
	f.seedClass("c1", 5, day(2026, 9, 14), "10:00")
	f.seedClass("c2", 5, day(2026, 9, 21), "10:00")
	f.seedUser("ana", map[string]int{"yoga": 2})
	f.svc.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }

	plan, _, err := f.svc.EnrollPlan(context.Background(), PlanInput{
		UserID: "ana", ClassTypeID: "yoga", Weekdays: []string{"lunes"},
		StartTime: "10:00", EndTime: "11:00",
		Desde: day(2026, 9, 1), Hasta: day(2026, 9, 30),
	})
	if err != nil {
		t.Fatalf("EnrollPlan: %v", err)
	}

	removed, err := f.svc.RemovePlan(context.Background(), "ana", plan.ID)
	if err != nil {
		t.Fatalf("RemovePlan: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 unenrollments, got %d", removed)
	}
	balances, _ := f.users.CreditBalances(context.Background(), "ana")
	if balances["yoga"] != 2 {
		t.Errorf("expected both credits refunded, got %d", balances["yoga"])
	}
	plans, _ := f.users.ListPlans(context.Background(), "ana")
	if len(plans) != 0 {
		t.Errorf("expected plan deleted, got %v", plans)
	}

	if _, err := f.svc.RemovePlan(context.Background(), "ana", plan.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("second removal: expected not-found, got %v", err)
	}
}
