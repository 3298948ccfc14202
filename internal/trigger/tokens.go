package trigger

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time in UTC, written as HH:MM or HH:MM:SS.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, nil
	}

	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}

	parsed, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
}

// On returns the time of day on the date of day.
func (d TimeOfDay) On(day time.Time) time.Time {
	y, m, dd := day.Date()
	return time.Date(y, m, dd, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", d.Hour, d.Minute, d.Second)
}

func (d TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseIntRange expands a token list such as "1,5,10-12" into sorted unique
// values, each within [lo, hi].
func ParseIntRange(s string, lo, hi int) ([]int, error) {
	var out []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		first, last := tok, tok
		if i := strings.Index(tok, "-"); i > 0 {
			first, last = tok[:i], tok[i+1:]
		}

		a, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return nil, fmt.Errorf("invalid token %q", tok)
		}
		b, err := strconv.Atoi(strings.TrimSpace(last))
		if err != nil {
			return nil, fmt.Errorf("invalid token %q", tok)
		}
		if a > b {
			return nil, fmt.Errorf("invalid range %q", tok)
		}
		if a < lo || b > hi {
			return nil, fmt.Errorf("token %q out of range %d-%d", tok, lo, hi)
		}

		for v := a; v <= b; v++ {
			out = append(out, v)
		}
	}

	slices.Sort(out)
	return slices.Compact(out), nil
}

// ParseDaysOfMonth parses day tokens; 0 stands for the last day of the month.
func ParseDaysOfMonth(s string) ([]int, error) {
	days, err := ParseIntRange(s, 0, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDays, err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no days given", ErrInvalidDays)
	}
	return days, nil
}

// ParseMonths parses month tokens in 1-12.
func ParseMonths(s string) ([]time.Month, error) {
	values, err := ParseIntRange(s, 1, 12)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMonths, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no months given", ErrInvalidMonths)
	}

	months := make([]time.Month, len(values))
	for i, v := range values {
		months[i] = time.Month(v)
	}
	return months, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays parses weekday tokens given as numbers (0 = Sunday) or
// English names, including ranges such as "mon-fri".
func ParseWeekdays(s string) ([]time.Weekday, error) {
	tokens := strings.Split(strings.ToLower(s), ",")
	for i, tok := range tokens {
		bounds := strings.SplitN(tok, "-", 2)
		for j, b := range bounds {
			b = strings.TrimSpace(b)
			if wd, ok := weekdayNames[b]; ok {
				b = strconv.Itoa(int(wd))
			}
			bounds[j] = b
		}
		tokens[i] = strings.Join(bounds, "-")
	}

	values, err := ParseIntRange(strings.Join(tokens, ","), 0, 6)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDays, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no weekdays given", ErrInvalidDays)
	}

	days := make([]time.Weekday, len(values))
	for i, v := range values {
		days[i] = time.Weekday(v)
	}
	return days, nil
}

// resolveDays maps day tokens onto concrete days of the given month: 0 and
// days beyond the month length become the last day.
func resolveDays(tokens []int, year int, month time.Month) []int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	days := make([]int, 0, len(tokens))
	for _, d := range tokens {
		if d <= 0 || d > last {
			d = last
		}
		days = append(days, d)
	}

	slices.Sort(days)
	return slices.Compact(days)
}
