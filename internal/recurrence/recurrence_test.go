package recurrence

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandMondaysAndWednesdays(t *testing.T) {
	got := Expand([]string{"lunes", "miércoles"}, date(2024, time.January, 1), date(2024, time.January, 31))

	// January 2024: Mondays 1,8,15,22,29 and Wednesdays 3,10,17,24,31.
	if len(got) != 10 {
		t.Fatalf("expected 10 dates, got %d", len(got))
	}
	for i, d := range got {
		if wd := d.Weekday(); wd != time.Monday && wd != time.Wednesday {
			t.Errorf("date %d (%s) is a %s", i, d.Format("2006-01-02"), wd)
		}
		if d.Hour() != 12 || d.Minute() != 0 || d.Location() != time.UTC {
			t.Errorf("date %s not normalized to UTC noon", d)
		}
		if i > 0 && !got[i-1].Before(d) {
			t.Errorf("dates out of order at index %d", i)
		}
	}
	if got[0].Day() != 1 || got[len(got)-1].Day() != 31 {
		t.Errorf("range bounds not inclusive: first=%v last=%v", got[0], got[len(got)-1])
	}
}

func TestExpandDeterministic(t *testing.T) {
	a := Expand([]string{"lunes", "miercoles"}, date(2024, time.January, 1), date(2024, time.January, 31))
	b := Expand([]string{"lunes", "miercoles"}, date(2024, time.January, 1), date(2024, time.January, 31))
	if len(a) != len(b) {
		t.Fatalf("non-deterministic length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Errorf("index %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestExpandEmptyResults(t *testing.T) {
	cases := []struct {
		name     string
		weekdays []string
		start    time.Time
		end      time.Time
	}{
		{"end before start", []string{"lunes"}, date(2024, time.February, 1), date(2024, time.January, 1)},
		{"no weekdays", nil, date(2024, time.January, 1), date(2024, time.January, 31)},
		{"only unknown names", []string{"someday"}, date(2024, time.January, 1), date(2024, time.January, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Expand(tc.weekdays, tc.start, tc.end); len(got) != 0 {
				t.Errorf("expected empty expansion, got %d dates", len(got))
			}
		})
	}
}

func TestExpandDuplicateWeekdaysDeduplicated(t *testing.T) {
	got := Expand([]string{"sábado", "sabado"}, date(2024, time.March, 1), date(2024, time.March, 31))
	seen := map[string]bool{}
	for _, d := range got {
		k := d.Format("2006-01-02")
		if seen[k] {
			t.Fatalf("duplicate date %s", k)
		}
		seen[k] = true
	}
	if len(got) != 5 {
		t.Errorf("March 2024 has 5 Saturdays, got %d", len(got))
	}
}

func TestExpandSingleDayRange(t *testing.T) {
	// 2024-01-03 is a Wednesday.
	got := Expand([]string{"miércoles"}, date(2024, time.January, 3), date(2024, time.January, 3))
	if len(got) != 1 {
		t.Fatalf("expected 1 date, got %d", len(got))
	}
	if got[0].Day() != 3 {
		t.Errorf("expected Jan 3, got %v", got[0])
	}
}

func TestParseWeekday(t *testing.T) {
	if d, ok := ParseWeekday(" Lunes "); !ok || d != time.Monday {
		t.Errorf("Lunes not recognized: %v %v", d, ok)
	}
	if _, ok := ParseWeekday("funday"); ok {
		t.Error("unknown weekday accepted")
	}
}
