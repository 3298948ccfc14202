package trigger

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"", TimeOfDay{}, false},
		{"09:30", TimeOfDay{Hour: 9, Minute: 30}, false},
		{"23:59:58", TimeOfDay{Hour: 23, Minute: 59, Second: 58}, false},
		{"24:00", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidTimeOfDay) {
			t.Errorf("ParseTimeOfDay(%q) error = %v, want ErrInvalidTimeOfDay", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTimeOfDay_Text(t *testing.T) {
	var d TimeOfDay
	if err := d.UnmarshalText([]byte("07:05")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	b, _ := d.MarshalText()
	if string(b) != "07:05:00" {
		t.Errorf("MarshalText() = %s, want 07:05:00", b)
	}
}

func TestParseDaysOfMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"1,15", []int{1, 15}, false},
		{"10-12, 11", []int{10, 11, 12}, false},
		{"0", []int{0}, false},
		{"32", nil, true},
		{"5-3", nil, true},
		{"x", nil, true},
		{"", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseDaysOfMonth(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDaysOfMonth(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidDays) {
			t.Errorf("ParseDaysOfMonth(%q) error = %v, want ErrInvalidDays", tt.in, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("ParseDaysOfMonth(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMonths(t *testing.T) {
	got, err := ParseMonths("1,6-7")
	if err != nil {
		t.Fatalf("ParseMonths() error = %v", err)
	}
	want := []time.Month{time.January, time.June, time.July}
	if !slices.Equal(got, want) {
		t.Errorf("ParseMonths() = %v, want %v", got, want)
	}

	if _, err := ParseMonths("13"); !errors.Is(err, ErrInvalidMonths) {
		t.Errorf("ParseMonths(13) error = %v, want ErrInvalidMonths", err)
	}
}

func TestParseWeekdays(t *testing.T) {
	tests := []struct {
		in   string
		want []time.Weekday
	}{
		{"mon-fri", []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
		{"Sunday, sat", []time.Weekday{time.Sunday, time.Saturday}},
		{"1,3", []time.Weekday{time.Monday, time.Wednesday}},
	}

	for _, tt := range tests {
		got, err := ParseWeekdays(tt.in)
		if err != nil {
			t.Errorf("ParseWeekdays(%q) error = %v", tt.in, err)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("ParseWeekdays(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseWeekdays("funday"); !errors.Is(err, ErrInvalidDays) {
		t.Errorf("ParseWeekdays(funday) error = %v, want ErrInvalidDays", err)
	}
}

func TestResolveDays(t *testing.T) {
	tests := []struct {
		tokens []int
		year   int
		month  time.Month
		want   []int
	}{
		{[]int{0}, 2026, time.February, []int{28}},
		{[]int{0}, 2028, time.February, []int{29}},
		{[]int{30, 31}, 2026, time.April, []int{30}},
		{[]int{1, 31}, 2026, time.January, []int{1, 31}},
	}

	for _, tt := range tests {
		got := resolveDays(tt.tokens, tt.year, tt.month)
		if !slices.Equal(got, tt.want) {
			t.Errorf("resolveDays(%v, %d, %s) = %v, want %v", tt.tokens, tt.year, tt.month, got, tt.want)
		}
	}
}
