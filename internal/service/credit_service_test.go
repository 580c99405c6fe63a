package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"app/internal/apperr"
	"app/internal/model"

	"github.com/rs/zerolog"
)

func newCreditFixture() (*fakeUserRepo, *fakeClassTypeRepo, *fakeJobRunRepo, CreditService) {
	users := newFakeUserRepo()
	types := newFakeClassTypeRepo()
	jobs := newFakeJobRunRepo()
	types.addType(model.ClassType{ID: "universal", Name: model.UniversalTypeName, EsUniversal: true})
	types.addType(model.ClassType{ID: "yoga", Name: "Yoga"})
	svc := NewCreditService(users, types, jobs, zerolog.Nop())
	return users, types, jobs, svc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestResolveDebitPrefersFreePass(t *testing.T) {
	users, _, _, svc := newCreditFixture()
	desde := day(2026, 9, 1)
	hasta := day(2026, 9, 30)
	users.addUser(model.User{ID: "u1", PaseLibreDesde: &desde, PaseLibreHasta: &hasta})
	users.AdjustCredit(context.Background(), "u1", "yoga", 3)

	u, _ := users.GetByID(context.Background(), "u1")
	res, err := svc.ResolveDebit(context.Background(), u, "yoga", day(2026, 9, 15))
	if err != nil {
		t.Fatalf("ResolveDebit: %v", err)
	}
	if !res.FreePass || res.CreditTypeID != nil {
		t.Errorf("expected free-pass resolution, got %+v", res)
	}
}

func TestResolveDebitOwnTypeBeforeUniversal(t *testing.T) {
	users, _, _, svc := newCreditFixture()
	users.addUser(model.User{ID: "u1"})
	users.AdjustCredit(context.Background(), "u1", "yoga", 1)
	users.AdjustCredit(context.Background(), "u1", "universal", 1)

	u, _ := users.GetByID(context.Background(), "u1")
	res, err := svc.ResolveDebit(context.Background(), u, "yoga", day(2026, 9, 15))
	if err != nil {
		t.Fatalf("ResolveDebit: %v", err)
	}
	if res.CreditTypeID == nil || *res.CreditTypeID != "yoga" {
		t.Errorf("expected yoga debit, got %+v", res)
	}
}

func TestResolveDebitFallsBackToUniversal(t *testing.T) {
	users, _, _, svc := newCreditFixture()
	users.addUser(model.User{ID: "u1"})
	users.AdjustCredit(context.Background(), "u1", "universal", 2)

	u, _ := users.GetByID(context.Background(), "u1")
	res, err := svc.ResolveDebit(context.Background(), u, "yoga", day(2026, 9, 15))
	if err != nil {
		t.Fatalf("ResolveDebit: %v", err)
	}
	if res.CreditTypeID == nil || *res.CreditTypeID != "universal" {
		t.Errorf("expected universal fallback, got %+v", res)
	}
}

func TestResolveDebitRejections(t *testing.T) {
	users, _, _, svc := newCreditFixture()
	users.addUser(model.User{ID: "broke"})

	u, _ := users.GetByID(context.Background(), "broke")
	_, err := svc.ResolveDebit(context.Background(), u, "yoga", day(2026, 9, 15))
	if apperr.KindOf(err) != apperr.KindInsufficientCredit {
		t.Fatalf("expected insufficient-credit error, got %v", err)
	}

	// An expired free pass produces the pass-specific wording.
	desde := day(2026, 8, 1)
	hasta := day(2026, 8, 31)
	users.addUser(model.User{ID: "expired", PaseLibreDesde: &desde, PaseLibreHasta: &hasta})
	u, _ = users.GetByID(context.Background(), "expired")
	_, err = svc.ResolveDebit(context.Background(), u, "yoga", day(2026, 9, 15))
	if apperr.KindOf(err) != apperr.KindInsufficientCredit {
		t.Fatalf("expected insufficient-credit error, got %v", err)
	}
	if !strings.Contains(apperr.MessageOf(err), "pase libre") {
		t.Errorf("expected free-pass wording, got %q", apperr.MessageOf(err))
	}
}

func TestAdjustManualRejectsOverdraftAndZero(t *testing.T) {
	users, _, _, svc := newCreditFixture()
	users.addUser(model.User{ID: "u1"})
	users.AdjustCredit(context.Background(), "u1", "yoga", 2)

	if err := svc.AdjustManual(context.Background(), "u1", "yoga", 0); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("zero delta: expected validation error, got %v", err)
	}
	if err := svc.AdjustManual(context.Background(), "u1", "yoga", -3); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("overdraft: expected validation error, got %v", err)
	}
	if err := svc.AdjustManual(context.Background(), "u1", "yoga", -2); err != nil {
		t.Errorf("exact decrease should pass, got %v", err)
	}
	balances, _ := users.CreditBalances(context.Background(), "u1")
	if balances["yoga"] != 0 {
		t.Errorf("expected balance 0, got %d", balances["yoga"])
	}
}

func TestRenewMonthlySubscriptionsIdempotentPerMonth(t *testing.T) {
	users, _, _, svc := newCreditFixture()
	users.addUser(model.User{ID: "u1"})
	users.CreateSubscription(context.Background(), &model.MonthlySubscription{
		ID: "sub-a", UserID: "u1", ClassTypeID: "yoga",
		Status: model.SubscriptionAutomatica, AutoRenewAmount: 5,
	})
	users.CreateSubscription(context.Background(), &model.MonthlySubscription{
		ID: "sub-b", UserID: "u1", ClassTypeID: "yoga",
		Status: model.SubscriptionManual, AutoRenewAmount: 5,
	})

	now := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	n, err := svc.RenewMonthlySubscriptions(context.Background(), now)
	if err != nil {
		t.Fatalf("RenewMonthlySubscriptions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 renewal (manual skipped), got %d", n)
	}
	balances, _ := users.CreditBalances(context.Background(), "u1")
	if balances["yoga"] != 5 {
		t.Fatalf("expected 5 credits, got %d", balances["yoga"])
	}

	// Re-run within the same month is a no-op.
	n, err = svc.RenewMonthlySubscriptions(context.Background(), now.AddDate(0, 0, 10))
	if err != nil || n != 0 {
		t.Fatalf("same-month rerun: expected 0 renewals, got %d (%v)", n, err)
	}

	// Next month tops up again.
	n, err = svc.RenewMonthlySubscriptions(context.Background(), now.AddDate(0, 1, 0))
	if err != nil || n != 1 {
		t.Fatalf("next month: expected 1 renewal, got %d (%v)", n, err)
	}
	balances, _ = users.CreditBalances(context.Background(), "u1")
	if balances["yoga"] != 10 {
		t.Errorf("expected 10 credits after second renewal, got %d", balances["yoga"])
	}
}

func TestResetMonthlyCreditsOncePerMonth(t *testing.T) {
	users, types, _, svc := newCreditFixture()
	types.addType(model.ClassType{ID: "pilates", Name: "Pilates", ResetMensual: true})
	users.addUser(model.User{ID: "u1"})
	users.AdjustCredit(context.Background(), "u1", "pilates", 4)
	users.AdjustCredit(context.Background(), "u1", "yoga", 4)

	now := time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC)
	n, err := svc.ResetMonthlyCredits(context.Background(), now)
	if err != nil {
		t.Fatalf("ResetMonthlyCredits: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 balance reset, got %d", n)
	}
	balances, _ := users.CreditBalances(context.Background(), "u1")
	if balances["pilates"] != 0 {
		t.Errorf("resetMensual balance should be 0, got %d", balances["pilates"])
	}
	if balances["yoga"] != 4 {
		t.Errorf("non-reset balance must be untouched, got %d", balances["yoga"])
	}

	users.AdjustCredit(context.Background(), "u1", "pilates", 2)
	n, err = svc.ResetMonthlyCredits(context.Background(), now.AddDate(0, 0, 5))
	if err != nil || n != 0 {
		t.Fatalf("same-month rerun must be a no-op, got %d (%v)", n, err)
	}
	balances, _ = users.CreditBalances(context.Background(), "u1")
	if balances["pilates"] != 2 {
		t.Errorf("rerun must not touch balances, got %d", balances["pilates"])
	}
}

func TestCreateSubscriptionValidation(t *testing.T) {
	_, _, _, svc := newCreditFixture()

	err := svc.CreateSubscription(context.Background(), &model.MonthlySubscription{
		UserID: "u1", ClassTypeID: "yoga", Status: "semanal", AutoRenewAmount: 5,
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("bad status: expected validation error, got %v", err)
	}

	err = svc.CreateSubscription(context.Background(), &model.MonthlySubscription{
		UserID: "u1", ClassTypeID: "yoga", Status: model.SubscriptionManual, AutoRenewAmount: 0,
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("zero amount: expected validation error, got %v", err)
	}

	err = svc.CreateSubscription(context.Background(), &model.MonthlySubscription{
		UserID: "u1", ClassTypeID: "nope", Status: model.SubscriptionManual, AutoRenewAmount: 5,
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("unknown type: expected not-found error, got %v", err)
	}
}
