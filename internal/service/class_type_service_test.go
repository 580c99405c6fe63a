package service

import (
	"context"
	"testing"

	"app/internal/apperr"
	"app/internal/model"

	"github.com/rs/zerolog"
)

func newTypeFixture() (*fakeClassTypeRepo, ClassTypeService) {
	types := newFakeClassTypeRepo()
	types.addType(model.ClassType{ID: "universal", Name: model.UniversalTypeName, EsUniversal: true})
	types.addType(model.ClassType{ID: "yoga", Name: "Yoga"})
	return types, NewClassTypeService(types, zerolog.Nop())
}

func TestCreateRejectsReservedName(t *testing.T) {
	_, svc := newTypeFixture()
	err := svc.Create(context.Background(), &model.ClassType{Name: model.UniversalTypeName})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateNeverMintsUniversal(t *testing.T) {
	_, svc := newTypeFixture()
	ct := &model.ClassType{Name: "Crossfit", EsUniversal: true}
	if err := svc.Create(context.Background(), ct); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ct.EsUniversal {
		t.Error("created types must never be universal")
	}
}

func TestUniversalTypeIsImmutable(t *testing.T) {
	_, svc := newTypeFixture()

	err := svc.Update(context.Background(), &model.ClassType{ID: "universal", Name: "Otro"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("update: expected validation error, got %v", err)
	}
	if err := svc.Delete(context.Background(), "universal"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("delete: expected validation error, got %v", err)
	}
}

func TestDeleteRefusedWhileInstancesExist(t *testing.T) {
	types, svc := newTypeFixture()
	types.instances["yoga"] = 3

	if err := svc.Delete(context.Background(), "yoga"); apperr.KindOf(err) != apperr.KindStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	types.instances["yoga"] = 0
	if err := svc.Delete(context.Background(), "yoga"); err != nil {
		t.Fatalf("Delete without instances: %v", err)
	}
	if _, err := svc.Get(context.Background(), "yoga"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestListClampsNegativeDisponibles(t *testing.T) {
	types, svc := newTypeFixture()
	types.addType(model.ClassType{ID: "spin", Name: "Spinning", CreditosTotales: 5, CreditosDisponibles: -3})

	out, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, ct := range out {
		if ct.ID == "spin" && ct.CreditosDisponibles < 0 {
			t.Errorf("expected clamped disponibles, got %d", ct.CreditosDisponibles)
		}
	}
}
