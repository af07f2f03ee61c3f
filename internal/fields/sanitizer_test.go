package fields

import (
	"testing"

	"github.com/acme/ganttsync/internal/entity"
)

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()
	if len(r.Excluded) != 8 {
		t.Errorf("len(Excluded) = %d, want 8", len(r.Excluded))
	}
	if len(r.Dates) != 4 {
		t.Errorf("len(Dates) = %d, want 4", len(r.Dates))
	}
}

func TestColumns_DropsExcludedFields(t *testing.T) {
	s := NewSanitizer(DefaultRules(), nil)
	e := entity.New(
		entity.Field{Name: "id", Value: "t1"},
		entity.Field{Name: "baselines", Value: entity.RawJSON(`[]`)},
		entity.Field{Name: "name", Value: "Design"},
		entity.Field{Name: "$PhantomId", Value: "_generated1"},
		entity.Field{Name: "segments", Value: nil},
		entity.Field{Name: "duration", Value: int64(3)},
	)

	names, values := s.Columns(e)
	want := []string{"id", "name", "duration"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if values[2] != int64(3) {
		t.Errorf("values[2] = %#v, want int64(3)", values[2])
	}
}

func TestColumns_NormalizesDates(t *testing.T) {
	s := NewSanitizer(DefaultRules(), nil)
	e := entity.New(
		entity.Field{Name: "startDate", Value: "2026-01-05T08:30:00.000Z"},
		entity.Field{Name: "endDate", Value: ""},
		entity.Field{Name: "deadline", Value: nil},
		entity.Field{Name: "constraintDate", Value: "next tuesday"},
		entity.Field{Name: "note", Value: "2026-01-05T08:30:00Z"},
	)

	_, values := s.Columns(e)
	if values[0] != "2026-01-05 08:30:00" {
		t.Errorf("startDate = %#v, want 2026-01-05 08:30:00", values[0])
	}
	if values[1] != "" {
		t.Errorf("endDate = %#v, want empty string kept", values[1])
	}
	if values[2] != nil {
		t.Errorf("deadline = %#v, want nil kept", values[2])
	}
	if values[3] != "next tuesday" {
		t.Errorf("constraintDate = %#v, want verbatim", values[3])
	}
	if values[4] != "2026-01-05T08:30:00Z" {
		t.Errorf("note = %#v, non-date field must not change", values[4])
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   any
		wantOK bool
	}{
		{"rfc3339 utc", "2026-03-01T10:00:00Z", "2026-03-01 10:00:00", true},
		{"rfc3339 fractional", "2026-03-01T10:00:00.987Z", "2026-03-01 10:00:00", true},
		{"rfc3339 offset", "2026-03-01T10:00:00+02:00", "2026-03-01 08:00:00", true},
		{"local datetime", "2026-03-01T10:00:00", "2026-03-01 10:00:00", true},
		{"local datetime minutes", "2026-03-01T10:00", "2026-03-01 10:00:00", true},
		{"canonical", "2026-03-01 10:00:00", "2026-03-01 10:00:00", true},
		{"date only", "2026-03-01", "2026-03-01 00:00:00", true},
		{"epoch millis", int64(1767225600000), "2026-01-01 00:00:00", true},
		{"epoch millis float", float64(1767225600500), "2026-01-01 00:00:00", true},
		{"garbage", "not a date", "not a date", false},
		{"out of range", float64(9e15), float64(9e15), false},
		{"bool", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("NormalizeDate(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetRules(t *testing.T) {
	s := NewSanitizer(DefaultRules(), nil)
	s.SetRules(Rules{Excluded: []string{"name"}})

	names, _ := s.Columns(entity.New(
		entity.Field{Name: "name", Value: "x"},
		entity.Field{Name: "baselines", Value: "y"},
	))
	if len(names) != 1 || names[0] != "baselines" {
		t.Errorf("names = %v, want [baselines]", names)
	}
	if got := s.Rules().Excluded; len(got) != 1 || got[0] != "name" {
		t.Errorf("Rules().Excluded = %v", got)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	if _, err := ParseRules([]byte("excluded: [unterminated")); err == nil {
		t.Error("ParseRules() should fail on malformed YAML")
	}
}
